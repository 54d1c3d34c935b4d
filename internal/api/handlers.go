package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
	mysqlstore "ProofMesh/internal/storage/mysql"
	"ProofMesh/internal/task"
	"ProofMesh/internal/web3"
)

type healthResponse struct {
	Status    string               `json:"status"`
	Signer    string               `json:"signer"`
	PublicKey string               `json:"publicKey,omitempty"`
	Version   string               `json:"version"`
	Chains    []web3.ChainSnapshot `json:"chains,omitempty"`
	Jobs      *task.JobStats       `json:"jobs,omitempty"`
	Time      string               `json:"time"`
}

// verifyRequest 中的 receipt 保留原始 JSON，先做 schema 校验再解码。
type verifyRequest struct {
	Receipt json.RawMessage        `json:"receipt"`
	Input   proofs.ProvenanceInput `json:"input"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: proofs.ProofMeshVersion,
		Time:    time.Now().UTC().Format(proofs.TimestampLayout),
	}
	if s.issuer != nil {
		if signer := s.issuer.Signer(); signer != nil {
			resp.Signer = signer.Algorithm()
			resp.PublicKey = signer.PublicKey()
		}
	}
	if s.chains != nil {
		resp.Chains = s.chains.Snapshots(r.Context())
	}
	if s.jobs != nil {
		if stats, err := s.jobs.Stats(r.Context()); err == nil {
			resp.Jobs = &stats
		} else {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateProof 同步签发回执，配置了回执仓库时同时落库。
func (s *Server) handleCreateProof(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "签发服务未初始化"))
		return
	}
	var in proofs.ProvenanceInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	receipt, err := s.issuer.Generate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.receipts != nil {
		if err := s.receipts.Save(r.Context(), receipt); err != nil {
			writeError(w, err)
			return
		}
	}
	w.Header().Set("Location", "/api/v1/proofs/"+receipt.ProofID)
	writeReceipt(w, http.StatusCreated, receipt)
}

func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	if !s.requireReceipts(w) {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := s.receipts.List(r.Context(), mysqlstore.ListOptions{
		Limit:     limit,
		Generator: r.URL.Query().Get("generator"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": list, "count": len(list)})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	if !s.requireReceipts(w) {
		return
	}
	receipt, err := s.receipts.Get(r.Context(), chi.URLParam(r, "proofID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeReceipt(w, http.StatusOK, receipt)
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	if !s.requireReceipts(w) {
		return
	}
	depth, err := queryInt(r, "depth", mysqlstore.DefaultLineageDepth)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := mysqlstore.Lineage(r.Context(), s.receipts, chi.URLParam(r, "proofID"), depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyStored 使用请求体中的原始输入验证已保存的回执。
func (s *Server) handleVerifyStored(w http.ResponseWriter, r *http.Request) {
	if !s.requireReceipts(w) {
		return
	}
	if s.issuer == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "签发服务未初始化"))
		return
	}
	var in proofs.ProvenanceInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, err)
		return
	}
	receipt, err := s.receipts.Get(r.Context(), chi.URLParam(r, "proofID"))
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.issuer.Verify(receipt, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleVerifyReceipt 验证请求体中携带的完整回执，不依赖回执仓库。
func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "签发服务未初始化"))
		return
	}
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(bytes.TrimSpace(req.Receipt)) == 0 || bytes.Equal(bytes.TrimSpace(req.Receipt), []byte("null")) {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "缺少 receipt"))
		return
	}
	receipt, err := proofs.ParseReceipt(req.Receipt)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.issuer.Verify(receipt, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireJobs(w) {
		return
	}
	var req task.SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	job, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if !s.requireJobs(w) {
		return
	}
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if !s.requireJobs(w) {
		return
	}
	opts, err := jobListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	jobs, err := s.jobs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireJobs(w) {
		return
	}
	opts, err := jobListOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.jobs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func jobListOptions(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return nil, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return nil, err
	}
	opts := []task.ListOption{
		task.WithLimit(limit),
		task.WithOffset(offset),
		task.WithGenerator(q.Get("generator")),
		task.WithQuery(q.Get("q")),
	}
	if raw := q["status"]; len(raw) > 0 {
		statuses := make([]task.Status, 0, len(raw))
		for _, v := range raw {
			status := task.Status(v)
			if !task.IsValidStatus(status) {
				return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务状态: "+v)
			}
			statuses = append(statuses, status)
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if q.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	return opts, nil
}

func (s *Server) requireReceipts(w http.ResponseWriter) bool {
	if s.receipts == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "回执仓库未配置"))
		return false
	}
	return true
}

func (s *Server) requireJobs(w http.ResponseWriter) bool {
	if s.jobs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未配置"))
		return false
	}
	return true
}
