package job

// ActiveSet is the local collection of jobs believed to still be in
// flight, keyed by job id and ordered by first insertion.
//
// Invariant: no job in the set has a terminal status. Merging a
// terminal observation removes its entry rather than leaving a stale
// terminal record.
//
// ActiveSet values are treated as immutable snapshots: Merge returns a
// new set and never mutates its input. Callers that share a set across
// goroutines swap the pointer under their own lock.
type ActiveSet struct {
	order []string
	byID  map[string]Job
}

// NewActiveSet returns an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{byID: map[string]Job{}}
}

// Len returns the number of in-flight jobs.
func (s *ActiveSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Contains reports whether a job with the given id is in flight.
func (s *ActiveSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byID[id]
	return ok
}

// Get returns the tracked job for id, if present.
func (s *ActiveSet) Get(id string) (Job, bool) {
	if s == nil {
		return Job{}, false
	}
	j, ok := s.byID[id]
	return j, ok
}

// Jobs returns the in-flight jobs in first-insertion order.
func (s *ActiveSet) Jobs() []Job {
	if s == nil {
		return nil
	}
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// clone returns a deep-enough copy for copy-on-write merges.
func (s *ActiveSet) clone() *ActiveSet {
	c := &ActiveSet{
		order: make([]string, len(s.order)),
		byID:  make(map[string]Job, len(s.byID)),
	}
	copy(c.order, s.order)
	for id, j := range s.byID {
		c.byID[id] = j
	}
	return c
}

func (s *ActiveSet) remove(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Merge applies a batch of status observations to a set and returns the
// resulting set. The input set is not modified.
//
// For each incoming job: a terminal status removes any entry with that
// id (a no-op if none exists); a non-terminal status upserts, preserving
// the order position of the first insertion. Replaying the same batch is
// a no-op on the second application.
func Merge(s *ActiveSet, incoming []Job) *ActiveSet {
	if s == nil {
		s = NewActiveSet()
	}
	out := s.clone()
	for _, j := range incoming {
		if j.ID == "" {
			continue
		}
		if j.Terminal() {
			out.remove(j.ID)
			continue
		}
		if _, ok := out.byID[j.ID]; !ok {
			out.order = append(out.order, j.ID)
		}
		out.byID[j.ID] = j
	}
	return out
}
