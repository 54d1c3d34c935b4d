package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
	"ProofMesh/pkg/logger"
)

// errorBody 是所有错误响应的结构。
type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeReceipt 使用回执的规范排版输出。
func writeReceipt(w http.ResponseWriter, status int, receipt *proofs.ProofReceipt) {
	body, err := proofs.MarshalReceipt(receipt)
	if err != nil {
		writeError(w, xerrors.Wrap(proofs.CodeGenerationFailed, err, "序列化回执失败"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// writeError 按统一错误码映射状态码。未归类的错误不向外暴露细节。
func writeError(w http.ResponseWriter, err error) {
	status := xerrors.HTTPStatusOf(err)
	body := errorBody{Code: string(xerrors.CodeOf(err))}

	var validation *proofs.ValidationError
	switch {
	case errors.As(err, &validation):
		body.Message = validation.Error()
		body.Details = map[string]string{"fields": strings.Join(validation.Fields, ",")}
	default:
		if coded, ok := xerrors.From(err); ok {
			body.Message = coded.Message()
			body.Details = coded.Metadata()
		} else {
			body.Message = "internal error"
		}
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败", slog.Any("error", err), slog.String("code", body.Code))
	}
	writeJSON(w, status, body)
}

// decodeBody 解析 JSON 请求体，超出大小限制或格式错误都归为 INVALID_ARGUMENT。
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体过大", xerrors.WithMetadata("limit", strconv.FormatInt(maxErr.Limit, 10)))
		}
		if errors.Is(err, io.EOF) {
			return xerrors.New(xerrors.CodeInvalidArgument, "请求体不能为空")
		}
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, key+" 必须是非负整数")
	}
	return value, nil
}
