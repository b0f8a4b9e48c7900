// Package history keeps a ledger of scan summaries for trend reporting.
package history

import (
	"bufio"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
)

// Snapshot summarizes one scan.
type Snapshot struct {
	ScanID           string          `json:"scan_id"`
	Timestamp        int64           `json:"timestamp"`
	RuleSetVersion   string          `json:"rule_set_version"`
	Regions          []string        `json:"regions"`
	FindingCount     int             `json:"finding_count"`
	MonthlyWaste     decimal.Decimal `json:"monthly_waste"`
	AlreadyWasted    decimal.Decimal `json:"already_wasted"`
	ByClassification map[string]int  `json:"by_classification"`
	FailedJobs       int             `json:"failed_jobs"`
}

// FromResult summarizes a scan result.
func FromResult(res *scan.Result) Snapshot {
	s := Snapshot{
		ScanID:           res.ID,
		Timestamp:        res.FinishedAt.Unix(),
		RuleSetVersion:   res.RuleSetVersion,
		FindingCount:     len(res.Findings),
		ByClassification: make(map[string]int),
		FailedJobs:       len(res.Jobs) - len(res.Completed()),
	}
	regions := make(map[string]struct{})
	for _, j := range res.Jobs {
		regions[j.Region] = struct{}{}
	}
	s.Regions = slices.Sorted(maps.Keys(regions))
	for _, f := range res.Findings {
		s.MonthlyWaste = s.MonthlyWaste.Add(f.MonthlyWaste)
		s.AlreadyWasted = s.AlreadyWasted.Add(f.AlreadyWasted)
		s.ByClassification[f.Classification]++
	}
	return s
}

// Backend defines the storage interface for snapshots.
type Backend interface {
	Append(s Snapshot) error
	// Load returns up to n most recent snapshots, oldest first.
	Load(n int) ([]Snapshot, error)
}

// Client manages historical state.
type Client struct {
	backend Backend
}

// NewClient initializes a history client.
// Defaults to FileBackend.
func NewClient(backend Backend) *Client {
	if backend == nil {
		backend = &FileBackend{}
	}
	return &Client{
		backend: backend,
	}
}

// Append records a new snapshot.
func (c *Client) Append(s Snapshot) error {
	return c.backend.Append(s)
}

// LoadWindow retrieves the n most recent snapshots.
func (c *Client) LoadWindow(n int) ([]Snapshot, error) {
	return c.backend.Load(n)
}

// NewLocalBackend creates a file-based backend at the specified path.
func NewLocalBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// FileBackend appends snapshots to a JSON lines file.
type FileBackend struct {
	Path string
}

func (b *FileBackend) path() (string, error) {
	if b.Path != "" {
		return b.Path, nil
	}
	return GetLedgerPath()
}

func (b *FileBackend) Append(s Snapshot) error {
	path, err := b.path()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (b *FileBackend) Load(n int) ([]Snapshot, error) {
	path, err := b.path()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var history []Snapshot
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var s Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		history = append(history, s)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

func tail(history []Snapshot, n int) []Snapshot {
	if n > 0 && len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

// GetLedgerPath provides the default local storage path.
func GetLedgerPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wastewatch", "ledger.jsonl"), nil
}
