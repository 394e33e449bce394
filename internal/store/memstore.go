package store

import (
	"errors"
	"sort"
	"sync"
)

// MemStore implements Store in memory. Used by tests and by one-shot
// commands that don't want a database on disk.
type MemStore struct {
	mu         sync.Mutex
	runs       map[int64]*Run
	runsByCase map[string]int64
	nextRun    int64
	iterations map[int64]*Iteration
	nextIter   int64
	defects    map[int64]*Defect
	nextDefect int64
	guardrails map[int64]*Guardrail
	nextRail   int64
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:       make(map[int64]*Run),
		runsByCase: make(map[string]int64),
		iterations: make(map[int64]*Iteration),
		defects:    make(map[int64]*Defect),
		guardrails: make(map[int64]*Guardrail),
	}
}

func (s *MemStore) CreateRun(run *Run) (int64, error) {
	if run == nil {
		return 0, errors.New("run is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runsByCase[run.Case]; ok {
		return 0, errors.New("run exists for case " + run.Case)
	}
	s.nextRun++
	cp := *run
	cp.ID = s.nextRun
	if cp.Status == "" {
		cp.Status = "running"
	}
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	s.runs[cp.ID] = &cp
	s.runsByCase[cp.Case] = cp.ID
	return cp.ID, nil
}

func (s *MemStore) GetRun(runID int64) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) GetRunByCase(caseName string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.runsByCase[caseName]
	if !ok {
		return nil, nil
	}
	cp := *s.runs[id]
	return &cp, nil
}

func (s *MemStore) ListRuns() ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Run, 0, len(s.runs))
	for id := s.nextRun; id >= 1; id-- {
		if r, ok := s.runs[id]; ok {
			cp := *r
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (s *MemStore) FinishRun(runID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	r.Status = status
	r.FinishedAt = nowUTC()
	return nil
}

func (s *MemStore) AddIteration(it *Iteration) (int64, error) {
	if it == nil {
		return 0, errors.New("iteration is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.iterations {
		if have.RunID == it.RunID && have.N == it.N {
			return 0, errors.New("iteration exists")
		}
	}
	s.nextIter++
	cp := *it
	cp.ID = s.nextIter
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	cp.Scores = copyScores(it.Scores)
	s.iterations[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemStore) ListIterations(runID int64) ([]*Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Iteration
	for id := int64(1); id <= s.nextIter; id++ {
		it, ok := s.iterations[id]
		if !ok || it.RunID != runID {
			continue
		}
		cp := *it
		cp.Scores = copyScores(it.Scores)
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].N < list[j].N })
	return list, nil
}

func (s *MemStore) LatestIteration(runID int64) (*Iteration, error) {
	list, err := s.ListIterations(runID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[len(list)-1], nil
}

func (s *MemStore) AddDefects(iterationID int64, defects []*Defect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range defects {
		if d == nil {
			continue
		}
		s.nextDefect++
		cp := *d
		cp.ID = s.nextDefect
		cp.IterationID = iterationID
		s.defects[cp.ID] = &cp
	}
	return nil
}

func (s *MemStore) ListDefects(iterationID int64) ([]*Defect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Defect
	for id := int64(1); id <= s.nextDefect; id++ {
		d, ok := s.defects[id]
		if !ok || d.IterationID != iterationID {
			continue
		}
		cp := *d
		list = append(list, &cp)
	}
	return list, nil
}

func (s *MemStore) AddGuardrail(g *Guardrail) (int64, error) {
	if g == nil {
		return 0, errors.New("guardrail is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRail++
	cp := *g
	cp.ID = s.nextRail
	if cp.CreatedAt == "" {
		cp.CreatedAt = nowUTC()
	}
	s.guardrails[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemStore) ListGuardrails(runID int64) ([]*Guardrail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*Guardrail
	for id := int64(1); id <= s.nextRail; id++ {
		g, ok := s.guardrails[id]
		if !ok || g.RunID != runID {
			continue
		}
		cp := *g
		list = append(list, &cp)
	}
	return list, nil
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

func copyScores(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
