package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/chassisctl/internal/metrics"
	"github.com/san-kum/chassisctl/internal/odometry"
)

const (
	metadataFile = "metadata.json"
	traceFile    = "trace.csv"
)

var traceHeader = []string{"time", "x", "y", "theta", "est_x", "est_y", "est_theta"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// StepResult is the outcome of one scripted motion.
type StepResult struct {
	Step    string  `json:"step"`
	Outcome string  `json:"outcome"`
	Elapsed float64 `json:"elapsed"`
	// Pose is the true pose once the motion returned.
	Pose odometry.Pose `json:"pose"`
}

type RunMetadata struct {
	ID        string             `json:"id"`
	Preset    string             `json:"preset,omitempty"`
	Layout    string             `json:"layout"`
	Strategy  string             `json:"strategy"`
	Estimator string             `json:"estimator,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Seed      int64              `json:"seed"`
	Period    float64            `json:"period"`
	Duration  float64            `json:"duration"`
	Steps     []StepResult       `json:"steps"`
	FinalPose odometry.Pose      `json:"final_pose"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Save writes the run under a new directory and returns its ID. An empty
// meta.ID is generated from the preset or layout name.
func (s *Store) Save(meta *RunMetadata, trace []metrics.Sample) (string, error) {
	if meta.ID == "" {
		name := meta.Preset
		if name == "" {
			name = meta.Layout
		}
		meta.ID = fmt.Sprintf("%s_%d", name, time.Now().UnixMilli())
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, traceFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteTraceCSV(csvFile, trace); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// WriteTraceCSV writes one row per sample. Estimate columns are empty for
// samples without an estimate; wheel speed columns follow the pose.
func WriteTraceCSV(out io.Writer, trace []metrics.Sample) error {
	w := csv.NewWriter(out)

	wheels := 0
	for _, s := range trace {
		wheels = max(wheels, len(s.WheelRPM))
	}
	header := append([]string{}, traceHeader...)
	for i := 0; i < wheels; i++ {
		header = append(header, fmt.Sprintf("rpm%d", i))
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range trace {
		row := []string{
			formatFloat(s.T.Seconds()),
			formatFloat(s.Truth.X),
			formatFloat(s.Truth.Y),
			formatFloat(s.Truth.Theta),
		}
		if s.HasEstimate {
			row = append(row, formatFloat(s.Estimate.X), formatFloat(s.Estimate.Y), formatFloat(s.Estimate.Theta))
		} else {
			row = append(row, "", "", "")
		}
		for i := 0; i < wheels; i++ {
			if i < len(s.WheelRPM) {
				row = append(row, formatFloat(s.WheelRPM[i]))
			} else {
				row = append(row, "0")
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: run %s: %w", runID, err)
	}
	return &meta, nil
}

// TracePath returns the CSV file of a run.
func (s *Store) TracePath(runID string) string {
	return filepath.Join(s.baseDir, runID, traceFile)
}

func (s *Store) LoadTrace(runID string) ([]metrics.Sample, error) {
	file, err := os.Open(s.TracePath(runID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []metrics.Sample{}, nil
	}

	trace := make([]metrics.Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		sample, err := parseSample(record)
		if err != nil {
			return nil, fmt.Errorf("storage: run %s row %d: %w", runID, i+1, err)
		}
		trace = append(trace, sample)
	}
	return trace, nil
}

func parseSample(record []string) (metrics.Sample, error) {
	if len(record) < len(traceHeader) {
		return metrics.Sample{}, fmt.Errorf("expected at least %d columns, got %d", len(traceHeader), len(record))
	}

	vals := make([]float64, len(record))
	for i, field := range record {
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return metrics.Sample{}, err
		}
		vals[i] = v
	}

	s := metrics.Sample{
		T:     time.Duration(vals[0] * float64(time.Second)),
		Truth: odometry.Pose{X: vals[1], Y: vals[2], Theta: vals[3]},
	}
	if record[4] != "" {
		s.Estimate = odometry.Pose{X: vals[4], Y: vals[5], Theta: vals[6]}
		s.HasEstimate = true
	}
	if len(vals) > len(traceHeader) {
		s.WheelRPM = vals[len(traceHeader):]
	}
	return s, nil
}

type ExportSample struct {
	T        float64        `json:"t"`
	Truth    odometry.Pose  `json:"truth"`
	Estimate *odometry.Pose `json:"estimate,omitempty"`
	WheelRPM []float64      `json:"wheel_rpm,omitempty"`
}

type ExportData struct {
	Run   RunMetadata    `json:"run"`
	Trace []ExportSample `json:"trace"`
}

// ExportJSON writes a run and its trace as one JSON document.
func ExportJSON(out io.Writer, meta *RunMetadata, trace []metrics.Sample) error {
	if meta == nil {
		return errors.New("storage: nil run metadata")
	}
	data := ExportData{
		Run:   *meta,
		Trace: make([]ExportSample, len(trace)),
	}
	for i, s := range trace {
		data.Trace[i] = ExportSample{T: s.T.Seconds(), Truth: s.Truth, WheelRPM: s.WheelRPM}
		if s.HasEstimate {
			est := s.Estimate
			data.Trace[i].Estimate = &est
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
