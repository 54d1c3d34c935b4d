package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	xerrors "ProofMesh/internal/errors"
	"ProofMesh/internal/proofs"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// ListOptions 描述回执列表查询条件。
type ListOptions struct {
	Limit     int
	Generator string
}

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	o.Generator = strings.TrimSpace(o.Generator)
	return o
}

// ReceiptRepository 抽象证明回执的持久化接口。
type ReceiptRepository interface {
	Save(ctx context.Context, receipt *proofs.ProofReceipt) error
	Get(ctx context.Context, proofID string) (*proofs.ProofReceipt, error)
	List(ctx context.Context, opts ListOptions) ([]*proofs.ProofReceipt, error)
	Close() error
}

// receiptEntry 是回执日志中的一行。
type receiptEntry struct {
	CreatedAt int64                `json:"createdAt"`
	Receipt   *proofs.ProofReceipt `json:"receipt"`
}

// MemoryReceiptRepository 在内存中保存回执；指定数据目录时以追加写的方式落盘，重启后恢复。
type MemoryReceiptRepository struct {
	mu       sync.RWMutex
	dataFile string
	entries  map[string]receiptEntry
	order    []string
	now      func() time.Time
}

// NewMemoryReceiptRepository 创建内存回执仓库。dataDir 为空时不落盘。
func NewMemoryReceiptRepository(dataDir string) (*MemoryReceiptRepository, error) {
	repo := &MemoryReceiptRepository{
		entries: make(map[string]receiptEntry),
		now:     time.Now,
	}
	if strings.TrimSpace(dataDir) == "" {
		return repo, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	repo.dataFile = filepath.Join(dataDir, "receipts.log")
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 保存回执，重复的 proofId 返回 CONFLICT。
func (m *MemoryReceiptRepository) Save(_ context.Context, receipt *proofs.ProofReceipt) error {
	if receipt == nil || strings.TrimSpace(receipt.ProofID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "回执缺少 proofId")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[receipt.ProofID]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("回执 %s 已存在", receipt.ProofID))
	}

	entry := receiptEntry{CreatedAt: m.now().UnixNano(), Receipt: cloneReceipt(receipt)}
	if m.dataFile != "" {
		if err := m.appendToDisk(entry); err != nil {
			return err
		}
	}
	m.entries[receipt.ProofID] = entry
	m.order = append(m.order, receipt.ProofID)
	return nil
}

// Get 根据 proofId 查询回执。
func (m *MemoryReceiptRepository) Get(_ context.Context, proofID string) (*proofs.ProofReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[proofID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("回执 %s 不存在", proofID))
	}
	return cloneReceipt(entry.Receipt), nil
}

// List 按写入时间倒序返回回执。
func (m *MemoryReceiptRepository) List(_ context.Context, opts ListOptions) ([]*proofs.ProofReceipt, error) {
	opts = opts.normalized()

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*proofs.ProofReceipt, 0, opts.Limit)
	for i := len(m.order) - 1; i >= 0 && len(results) < opts.Limit; i-- {
		entry := m.entries[m.order[i]]
		if opts.Generator != "" && entry.Receipt.Metadata.Generator != opts.Generator {
			continue
		}
		results = append(results, cloneReceipt(entry.Receipt))
	}
	return results, nil
}

// Close 对内存仓库无实际操作。
func (m *MemoryReceiptRepository) Close() error { return nil }

func (m *MemoryReceiptRepository) appendToDisk(entry receiptEntry) error {
	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开回执日志失败")
	}
	defer file.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化回执失败")
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入回执日志失败")
	}
	return nil
}

func (m *MemoryReceiptRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取回执日志失败")
	}
	defer file.Close()

	var restored []receiptEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry receiptEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil || entry.Receipt == nil || entry.Receipt.ProofID == "" {
			continue
		}
		restored = append(restored, entry)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执日志失败")
	}

	sort.SliceStable(restored, func(i, j int) bool { return restored[i].CreatedAt < restored[j].CreatedAt })
	for _, entry := range restored {
		if _, exists := m.entries[entry.Receipt.ProofID]; exists {
			continue
		}
		m.entries[entry.Receipt.ProofID] = entry
		m.order = append(m.order, entry.Receipt.ProofID)
	}
	return nil
}

func cloneReceipt(r *proofs.ProofReceipt) *proofs.ProofReceipt {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// SQLReceiptRepository 使用 MySQL 存储回执，回执原文保存在 receipt_json 列。
// generator 与 parent_proof_id 为不限长的 TEXT，按 generator 过滤走 generator_hash 索引。
type SQLReceiptRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLReceiptRepository 打开连接池并执行迁移。
func NewSQLReceiptRepository(ctx context.Context, cfg Config) (*SQLReceiptRepository, error) {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化回执存储失败")
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return NewSQLReceiptRepositoryWithDB(db), nil
}

// NewSQLReceiptRepositoryWithDB 复用已有连接池，不执行迁移。
func NewSQLReceiptRepositoryWithDB(db *sql.DB) *SQLReceiptRepository {
	return &SQLReceiptRepository{db: db, now: time.Now}
}

// Save 将回执写入 proof_receipts 表。
func (s *SQLReceiptRepository) Save(ctx context.Context, receipt *proofs.ProofReceipt) error {
	if receipt == nil || strings.TrimSpace(receipt.ProofID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "回执缺少 proofId")
	}

	encoded, err := json.Marshal(receipt)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化回执失败")
	}

	const stmt = `INSERT INTO proof_receipts
        (proof_id, input_hash, generator, generator_hash, parent_proof_id, file_id, receipt_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		receipt.ProofID,
		receipt.InputHash,
		receipt.Metadata.Generator,
		proofs.Digest(receipt.Metadata.Generator),
		receipt.Metadata.ParentProofID,
		receipt.Anchor.FileID,
		string(encoded),
		s.now().UnixNano(),
	); err != nil {
		var mysqlErr *mysqldriver.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return xerrors.Wrap(xerrors.CodeConflict, err, fmt.Sprintf("回执 %s 已存在", receipt.ProofID))
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入回执失败")
	}
	return nil
}

// Get 根据 proofId 查询回执。
func (s *SQLReceiptRepository) Get(ctx context.Context, proofID string) (*proofs.ProofReceipt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT receipt_json FROM proof_receipts WHERE proof_id = ?`, proofID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("回执 %s 不存在", proofID))
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询回执失败")
	}
	return decodeReceipt(raw)
}

// List 按写入时间倒序返回回执，可按 generator 过滤。
func (s *SQLReceiptRepository) List(ctx context.Context, opts ListOptions) ([]*proofs.ProofReceipt, error) {
	opts = opts.normalized()

	query := `SELECT receipt_json FROM proof_receipts`
	args := make([]any, 0, 3)
	if opts.Generator != "" {
		query += ` WHERE generator_hash = ? AND generator = ?`
		args = append(args, proofs.Digest(opts.Generator), opts.Generator)
	}
	query += ` ORDER BY created_at DESC, proof_id DESC LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询回执列表失败")
	}
	defer rows.Close()

	results := make([]*proofs.ProofReceipt, 0, opts.Limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执列表失败")
		}
		receipt, err := decodeReceipt(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历回执列表失败")
	}
	return results, nil
}

// Close 关闭数据库连接池。
func (s *SQLReceiptRepository) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeReceipt(raw string) (*proofs.ProofReceipt, error) {
	var receipt proofs.ProofReceipt
	if err := json.Unmarshal([]byte(raw), &receipt); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "反序列化回执失败")
	}
	return &receipt, nil
}
