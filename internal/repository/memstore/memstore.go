// Package memstore provides in-memory implementations of the literature and
// task repositories. They back unit tests and the single-process dev mode;
// production deployments use the neo4j and redis implementations.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
)

type citesEdge struct {
	src        string
	dst        string
	confidence float64
	source     string
}

type unresolvedNode struct {
	id          string
	raw         string
	parsed      *domain.ParsedReference
	fingerprint string
}

// LiteratureStore is an in-memory domain.LiteratureRepository.
type LiteratureStore struct {
	mu         sync.Mutex
	lits       map[string]*domain.Literature
	aliases    map[string]string // "type\x00value" -> lid
	edges      []citesEdge
	unresolved map[string]*unresolvedNode
}

func NewLiteratureStore() *LiteratureStore {
	return &LiteratureStore{
		lits:       make(map[string]*domain.Literature),
		aliases:    make(map[string]string),
		unresolved: make(map[string]*unresolvedNode),
	}
}

func aliasKey(typ domain.AliasType, value string) string {
	return string(typ) + "\x00" + value
}

func (s *LiteratureStore) UpsertLiterature(_ context.Context, lit *domain.Literature) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, exists := s.lits[lit.LID]
	now := time.Now().UTC()
	copied := *lit
	if exists {
		// Identifier fields only grow across upserts.
		if copied.Identifiers.DOI == "" {
			copied.Identifiers.DOI = prev.Identifiers.DOI
		}
		if copied.Identifiers.ArxivID == "" {
			copied.Identifiers.ArxivID = prev.Identifiers.ArxivID
		}
		if copied.Identifiers.PMID == "" {
			copied.Identifiers.PMID = prev.Identifiers.PMID
		}
		if copied.Identifiers.Fingerprint == "" {
			copied.Identifiers.Fingerprint = prev.Identifiers.Fingerprint
		}
		copied.Identifiers.SourceURLs = mergeURLs(prev.Identifiers.SourceURLs, copied.Identifiers.SourceURLs)
		copied.CreatedAt = prev.CreatedAt
	} else {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	s.lits[lit.LID] = &copied
	return !exists, nil
}

func mergeURLs(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, u := range existing {
		seen[u] = true
	}
	for _, u := range added {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func (s *LiteratureStore) GetByLID(_ context.Context, lid string) (*domain.Literature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lit, ok := s.lits[lid]
	if !ok {
		return nil, nil
	}
	copied := *lit
	return &copied, nil
}

func (s *LiteratureStore) BatchGet(ctx context.Context, lids []string) ([]*domain.Literature, error) {
	out := make([]*domain.Literature, len(lids))
	for i, lid := range lids {
		lit, err := s.GetByLID(ctx, lid)
		if err != nil {
			return nil, err
		}
		out[i] = lit
	}
	return out, nil
}

func (s *LiteratureStore) SetTaskInfo(_ context.Context, lid string, info domain.TaskInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lit, ok := s.lits[lid]
	if !ok {
		return domain.E(domain.KindNotFound, "memstore: no literature "+lid)
	}
	lit.TaskInfo = &info
	lit.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *LiteratureStore) AddAlias(_ context.Context, lid string, typ domain.AliasType, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[aliasKey(typ, value)] = lid
	return nil
}

func (s *LiteratureStore) ResolveAlias(_ context.Context, typ domain.AliasType, value string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliases[aliasKey(typ, value)], nil
}

func (s *LiteratureStore) ClaimAlias(_ context.Context, typ domain.AliasType, value, lid string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := aliasKey(typ, value)
	if holder, ok := s.aliases[key]; ok {
		return holder, holder == lid, nil
	}
	s.aliases[key] = lid
	return lid, true, nil
}

func (s *LiteratureStore) LinkCites(_ context.Context, srcLID, dstID string, confidence float64, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		if e.src == srcLID && e.dst == dstID {
			return nil
		}
	}
	s.edges = append(s.edges, citesEdge{src: srcLID, dst: dstID, confidence: confidence, source: source})
	return nil
}

func (s *LiteratureStore) CreateUnresolved(_ context.Context, raw string, parsed *domain.ParsedReference) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "unresolved-" + uuid.NewString()[:8]
	node := &unresolvedNode{id: id, raw: raw, parsed: parsed}
	if parsed != nil {
		node.fingerprint = match.TitleFingerprint(parsed.Title, parsed.Authors, parsed.Year)
	}
	s.unresolved[id] = node
	return id, nil
}

func (s *LiteratureStore) PromoteUnresolved(_ context.Context, unresolvedID, lid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unresolved[unresolvedID]; !ok {
		return domain.E(domain.KindNotFound, "memstore: no unresolved "+unresolvedID)
	}
	delete(s.unresolved, unresolvedID)
	for i, e := range s.edges {
		if e.dst == unresolvedID {
			s.edges[i].dst = lid
		}
		if e.src == unresolvedID {
			s.edges[i].src = lid
		}
	}
	return nil
}

func (s *LiteratureStore) FindUnresolvedByFingerprint(_ context.Context, fingerprint string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, node := range s.unresolved {
		if node.fingerprint != "" && node.fingerprint == fingerprint {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *LiteratureStore) DeleteLiterature(_ context.Context, lid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lits, lid)
	for key, holder := range s.aliases {
		if holder == lid {
			delete(s.aliases, key)
		}
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.src != lid && e.dst != lid {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return nil
}

func (s *LiteratureStore) HasResolvedIncomingCites(_ context.Context, lid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		if e.dst != lid {
			continue
		}
		if _, resolved := s.lits[e.src]; resolved {
			return true, nil
		}
	}
	return false, nil
}

func (s *LiteratureStore) FindByTitleCandidates(_ context.Context, title string, limit int) ([]*domain.Literature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	words := strings.Fields(strings.ToLower(title))
	var out []*domain.Literature
	for _, lit := range s.lits {
		haystack := strings.ToLower(lit.Metadata.Title)
		for _, w := range words {
			if len(w) >= 4 && strings.Contains(haystack, w) {
				copied := *lit
				out = append(out, &copied)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *LiteratureStore) Neighborhood(_ context.Context, seeds []string, depth int) (*domain.GraphView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inSet := make(map[string]bool)
	frontier := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		if _, ok := s.lits[seed]; ok {
			inSet[seed] = true
			frontier = append(frontier, seed)
		}
	}
	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			for _, e := range s.edges {
				for _, neighbor := range []string{pick(e, id)} {
					if neighbor != "" && !inSet[neighbor] {
						inSet[neighbor] = true
						next = append(next, neighbor)
					}
				}
			}
		}
		frontier = next
	}

	view := &domain.GraphView{Meta: domain.GraphMeta{Depth: depth}}
	for id := range inSet {
		node := domain.GraphNode{ID: id, Type: "unresolved"}
		if lit, ok := s.lits[id]; ok {
			node.Type = "literature"
			node.Title = lit.Metadata.Title
			node.Year = lit.Metadata.Year
			for _, a := range lit.Metadata.Authors {
				node.Authors = append(node.Authors, a.Name)
			}
		} else if u, ok := s.unresolved[id]; ok && u.parsed != nil {
			node.Title = u.parsed.Title
			node.Year = u.parsed.Year
		}
		view.Nodes = append(view.Nodes, node)
	}
	for _, e := range s.edges {
		if inSet[e.src] && inSet[e.dst] {
			view.Edges = append(view.Edges, domain.GraphEdge{
				Source: e.src, Target: e.dst, Type: "cites", Weight: e.confidence,
			})
		}
	}
	view.Meta.NodeCount = len(view.Nodes)
	view.Meta.EdgeCount = len(view.Edges)
	return view, nil
}

func pick(e citesEdge, id string) string {
	if e.src == id {
		return e.dst
	}
	if e.dst == id {
		return e.src
	}
	return ""
}

func (s *LiteratureStore) Ping(context.Context) error { return nil }

// TaskStore is an in-memory domain.TaskRepository. Events fan out to every
// live subscriber of the task.
type TaskStore struct {
	mu          sync.Mutex
	tasks       map[string]*domain.Task
	queue       chan string
	claims      map[string]string
	cancels     map[string]bool
	subscribers map[string][]chan *domain.TaskEvent
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:       make(map[string]*domain.Task),
		queue:       make(chan string, 1024),
		claims:      make(map[string]string),
		cancels:     make(map[string]bool),
		subscribers: make(map[string][]chan *domain.TaskEvent),
	}
}

func (s *TaskStore) Save(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	s.tasks[task.TaskID] = &copied
	return nil
}

func (s *TaskStore) Get(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (s *TaskStore) Enqueue(_ context.Context, taskID string) error {
	s.queue <- taskID
	return nil
}

func (s *TaskStore) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-s.queue:
		return id, nil
	case <-ctx.Done():
		return "", domain.Ef(domain.KindCancelled, ctx.Err(), "dequeue interrupted")
	}
}

func (s *TaskStore) ClaimSource(_ context.Context, sourceKey, taskID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder, ok := s.claims[sourceKey]; ok && holder != taskID {
		return holder, false, nil
	}
	s.claims[sourceKey] = taskID
	return taskID, true, nil
}

func (s *TaskStore) ReleaseSource(_ context.Context, sourceKey, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[sourceKey] == taskID {
		delete(s.claims, sourceKey)
	}
	return nil
}

func (s *TaskStore) RequestCancel(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[taskID] = true
	return nil
}

func (s *TaskStore) CancelRequested(_ context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[taskID], nil
}

func (s *TaskStore) PublishEvent(_ context.Context, ev *domain.TaskEvent) error {
	s.mu.Lock()
	subs := append([]chan *domain.TaskEvent(nil), s.subscribers[ev.TaskID]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop
		}
	}
	return nil
}

func (s *TaskStore) SubscribeEvents(ctx context.Context, taskID string) (<-chan *domain.TaskEvent, func(), error) {
	ch := make(chan *domain.TaskEvent, 64)
	s.mu.Lock()
	s.subscribers[taskID] = append(s.subscribers[taskID], ch)
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			subs := s.subscribers[taskID]
			for i, c := range subs {
				if c == ch {
					s.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (s *TaskStore) Ping(context.Context) error { return nil }
