// Package neo4jrepo stores the literature graph in Neo4j. Literature and
// Unresolved nodes carry the record properties; Alias nodes with IDENTIFIES
// edges index every external handle; CITES edges carry confidence and
// provenance.
package neo4jrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/litgraph/backend/internal/domain"
	"github.com/litgraph/backend/internal/match"
)

type LiteratureRepository struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewLiteratureRepository(driver neo4j.DriverWithContext, database string) *LiteratureRepository {
	return &LiteratureRepository{driver: driver, database: database}
}

// EnsureSchema creates the uniqueness constraints and the title fulltext
// index. Safe to run on every startup.
func (r *LiteratureRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT literature_lid IF NOT EXISTS FOR (l:Literature) REQUIRE l.lid IS UNIQUE",
		"CREATE CONSTRAINT alias_key IF NOT EXISTS FOR (a:Alias) REQUIRE a.key IS UNIQUE",
		"CREATE CONSTRAINT unresolved_id IF NOT EXISTS FOR (u:Unresolved) REQUIRE u.node_id IS UNIQUE",
		"CREATE INDEX unresolved_fingerprint IF NOT EXISTS FOR (u:Unresolved) ON (u.fingerprint)",
		"CREATE FULLTEXT INDEX literature_title IF NOT EXISTS FOR (l:Literature) ON EACH [l.title]",
	}
	session := r.session(ctx)
	defer session.Close(ctx)
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return domain.Ef(domain.KindInternal, err, "neo4j: ensure schema")
		}
	}
	return nil
}

func (r *LiteratureRepository) session(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database})
}

// aliasKey is the single property the Alias uniqueness constraint runs on;
// composite property constraints are not available on every Neo4j edition.
func aliasKey(typ domain.AliasType, value string) string {
	return string(typ) + ":" + value
}

func (r *LiteratureRepository) UpsertLiterature(ctx context.Context, lit *domain.Literature) (bool, error) {
	props, err := nodeProps(lit)
	if err != nil {
		return false, err
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MERGE (l:Literature {lid: $lid})
			ON CREATE SET l.created_at = $now, l.was_created = true
			ON MATCH SET l.was_created = false
			WITH l, coalesce(l.source_urls, []) AS known_urls
			SET l += $props, l.updated_at = $now
			SET l.source_urls = known_urls +
				[u IN coalesce($props.source_urls, []) WHERE NOT u IN known_urls]
			WITH l, l.was_created AS created
			REMOVE l.was_created
			RETURN created`,
			map[string]any{"lid": lit.LID, "props": props, "now": time.Now().UTC().Format(time.RFC3339Nano)})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		created, _ := record.Get("created")
		return created, nil
	})
	if err != nil {
		return false, domain.Ef(domain.KindInternal, err, "neo4j: upsert %s", lit.LID)
	}
	created, _ := result.(bool)
	return created, nil
}

func (r *LiteratureRepository) GetByLID(ctx context.Context, lid string) (*domain.Literature, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (l:Literature {lid: $lid}) RETURN properties(l) AS props`,
			map[string]any{"lid": lid})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		props, _ := records[0].Get("props")
		return props, nil
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: get %s", lid)
	}
	if result == nil {
		return nil, nil
	}
	return literatureFromProps(result.(map[string]any))
}

func (r *LiteratureRepository) BatchGet(ctx context.Context, lids []string) ([]*domain.Literature, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (l:Literature) WHERE l.lid IN $lids RETURN properties(l) AS props`,
			map[string]any{"lids": lids})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: batch get")
	}

	byLID := make(map[string]*domain.Literature)
	for _, record := range result.([]*neo4j.Record) {
		props, _ := record.Get("props")
		lit, err := literatureFromProps(props.(map[string]any))
		if err != nil {
			return nil, err
		}
		byLID[lit.LID] = lit
	}
	// Preserve request order; missing ids stay nil.
	out := make([]*domain.Literature, len(lids))
	for i, lid := range lids {
		out[i] = byLID[lid]
	}
	return out, nil
}

func (r *LiteratureRepository) SetTaskInfo(ctx context.Context, lid string, info domain.TaskInfo) error {
	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (l:Literature {lid: $lid})
			SET l.task_id = $taskID, l.task_status = $status, l.updated_at = $now`,
			map[string]any{
				"lid": lid, "taskID": info.TaskID, "status": string(info.Status),
				"now": time.Now().UTC().Format(time.RFC3339Nano),
			})
	})
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "neo4j: set task info %s", lid)
	}
	return nil
}

func (r *LiteratureRepository) AddAlias(ctx context.Context, lid string, typ domain.AliasType, value string) error {
	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (l:Literature {lid: $lid})
			MERGE (a:Alias {key: $key})
			ON CREATE SET a.alias_type = $type, a.alias_value = $value, a.created_at = $now
			MERGE (a)-[:IDENTIFIES]->(l)`,
			map[string]any{
				"lid": lid, "key": aliasKey(typ, value), "type": string(typ), "value": value,
				"now": time.Now().UTC().Format(time.RFC3339Nano),
			})
	})
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "neo4j: add alias %s=%s", typ, value)
	}
	return nil
}

func (r *LiteratureRepository) ResolveAlias(ctx context.Context, typ domain.AliasType, value string) (string, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a:Alias {key: $key})-[:IDENTIFIES]->(l:Literature)
			RETURN l.lid AS lid LIMIT 1`,
			map[string]any{"key": aliasKey(typ, value)})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return "", nil
		}
		lid, _ := records[0].Get("lid")
		return lid, nil
	})
	if err != nil {
		return "", domain.Ef(domain.KindInternal, err, "neo4j: resolve alias %s=%s", typ, value)
	}
	lid, _ := result.(string)
	return lid, nil
}

// ClaimAlias is the dedup race arbiter. The MERGE is serialized by the
// uniqueness constraint on the alias key, so exactly one claimant creates the
// node; everyone else observes the winner.
func (r *LiteratureRepository) ClaimAlias(ctx context.Context, typ domain.AliasType, value, lid string) (string, bool, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (l:Literature {lid: $lid})
			MERGE (a:Alias {key: $key})
			ON CREATE SET a.alias_type = $type, a.alias_value = $value,
				a.created_at = $now, a.claimed_now = true
			ON MATCH SET a.claimed_now = false
			WITH a, l, a.claimed_now AS created
			REMOVE a.claimed_now
			FOREACH (_ IN CASE WHEN created THEN [1] ELSE [] END |
				MERGE (a)-[:IDENTIFIES]->(l))
			WITH a, created
			MATCH (a)-[:IDENTIFIES]->(owner:Literature)
			RETURN owner.lid AS winner, created LIMIT 1`,
			map[string]any{
				"lid": lid, "key": aliasKey(typ, value), "type": string(typ), "value": value,
				"now": time.Now().UTC().Format(time.RFC3339Nano),
			})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		winner, _ := record.Get("winner")
		created, _ := record.Get("created")
		return []any{winner, created}, nil
	})
	if err != nil {
		return "", false, domain.Ef(domain.KindInternal, err, "neo4j: claim alias %s=%s", typ, value)
	}
	pair := result.([]any)
	winner, _ := pair[0].(string)
	created, _ := pair[1].(bool)
	return winner, created, nil
}

func (r *LiteratureRepository) LinkCites(ctx context.Context, srcLID, dstID string, confidence float64, source string) error {
	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (src:Literature {lid: $src})
			OPTIONAL MATCH (dl:Literature {lid: $dst})
			OPTIONAL MATCH (du:Unresolved {node_id: $dst})
			WITH src, coalesce(dl, du) AS dst
			WHERE dst IS NOT NULL
			MERGE (src)-[r:CITES]->(dst)
			ON CREATE SET r.confidence = $confidence, r.source = $source, r.created_at = $now`,
			map[string]any{
				"src": srcLID, "dst": dstID, "confidence": confidence, "source": source,
				"now": time.Now().UTC().Format(time.RFC3339Nano),
			})
	})
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "neo4j: link %s cites %s", srcLID, dstID)
	}
	return nil
}

func (r *LiteratureRepository) CreateUnresolved(ctx context.Context, raw string, parsed *domain.ParsedReference) (string, error) {
	nodeID := "unresolved-" + uuid.NewString()[:8]
	props := map[string]any{
		"node_id":  nodeID,
		"raw_text": raw,
	}
	if parsed != nil {
		parsedJSON, err := json.Marshal(parsed)
		if err != nil {
			return "", domain.Ef(domain.KindInternal, err, "neo4j: marshal parsed reference")
		}
		props["parsed_json"] = string(parsedJSON)
		props["title"] = parsed.Title
		props["year"] = parsed.Year
		props["fingerprint"] = match.TitleFingerprint(parsed.Title, parsed.Authors, parsed.Year)
	}

	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			CREATE (u:Unresolved)
			SET u = $props, u.created_at = $now`,
			map[string]any{"props": props, "now": time.Now().UTC().Format(time.RFC3339Nano)})
	})
	if err != nil {
		return "", domain.Ef(domain.KindInternal, err, "neo4j: create unresolved")
	}
	return nodeID, nil
}

// PromoteUnresolved moves every incoming CITES edge from the placeholder to
// the literature, then drops the placeholder.
func (r *LiteratureRepository) PromoteUnresolved(ctx context.Context, unresolvedID, lid string) error {
	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (u:Unresolved {node_id: $uid})
			MATCH (l:Literature {lid: $lid})
			OPTIONAL MATCH (citer)-[r:CITES]->(u)
			FOREACH (_ IN CASE WHEN citer IS NULL THEN [] ELSE [1] END |
				MERGE (citer)-[nr:CITES]->(l)
				ON CREATE SET nr.confidence = r.confidence, nr.source = r.source, nr.created_at = r.created_at)
			WITH DISTINCT u
			DETACH DELETE u`,
			map[string]any{"uid": unresolvedID, "lid": lid})
	})
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "neo4j: promote %s to %s", unresolvedID, lid)
	}
	return nil
}

func (r *LiteratureRepository) FindUnresolvedByFingerprint(ctx context.Context, fingerprint string) ([]string, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (u:Unresolved {fingerprint: $fp}) RETURN u.node_id AS id`,
			map[string]any{"fp": fingerprint})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: find unresolved by fingerprint")
	}
	var ids []string
	for _, record := range result.([]*neo4j.Record) {
		id, _ := record.Get("id")
		ids = append(ids, id.(string))
	}
	return ids, nil
}

func (r *LiteratureRepository) DeleteLiterature(ctx context.Context, lid string) error {
	session := r.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MATCH (l:Literature {lid: $lid})
			OPTIONAL MATCH (a:Alias)-[:IDENTIFIES]->(l)
			DETACH DELETE a, l`,
			map[string]any{"lid": lid})
	})
	if err != nil {
		return domain.Ef(domain.KindInternal, err, "neo4j: delete %s", lid)
	}
	return nil
}

func (r *LiteratureRepository) HasResolvedIncomingCites(ctx context.Context, lid string) (bool, error) {
	session := r.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (src:Literature)-[:CITES]->(l:Literature {lid: $lid})
			RETURN count(src) > 0 AS cited`,
			map[string]any{"lid": lid})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		cited, _ := record.Get("cited")
		return cited, nil
	})
	if err != nil {
		return false, domain.Ef(domain.KindInternal, err, "neo4j: incoming cites %s", lid)
	}
	cited, _ := result.(bool)
	return cited, nil
}

var luceneSpecialRe = regexp.MustCompile(`[+\-!(){}\[\]^"~*?:\\/]|&&|\|\|`)

func (r *LiteratureRepository) FindByTitleCandidates(ctx context.Context, title string, limit int) ([]*domain.Literature, error) {
	query := strings.TrimSpace(luceneSpecialRe.ReplaceAllString(title, " "))
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	session := r.session(ctx)
	defer session.Close(ctx)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			CALL db.index.fulltext.queryNodes('literature_title', $query)
			YIELD node, score
			RETURN properties(node) AS props
			LIMIT $limit`,
			map[string]any{"query": query, "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: title candidates")
	}

	var out []*domain.Literature
	for _, record := range result.([]*neo4j.Record) {
		props, _ := record.Get("props")
		lit, err := literatureFromProps(props.(map[string]any))
		if err != nil {
			return nil, err
		}
		out = append(out, lit)
	}
	return out, nil
}

func (r *LiteratureRepository) Neighborhood(ctx context.Context, seeds []string, depth int) (*domain.GraphView, error) {
	if depth < 0 {
		depth = 0
	}
	session := r.session(ctx)
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameterized; depth is validated
	// and clamped by the caller.
	nodeQuery := fmt.Sprintf(`
		MATCH (seed:Literature) WHERE seed.lid IN $seeds
		MATCH (seed)-[:CITES*0..%d]-(n)
		RETURN DISTINCT coalesce(n.lid, n.node_id) AS id,
			labels(n) AS labels, n.title AS title, n.year AS year,
			n.authors_json AS authors`, depth)

	nodesResult, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, nodeQuery, map[string]any{"seeds": seeds})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: neighborhood nodes")
	}

	view := &domain.GraphView{Meta: domain.GraphMeta{Depth: depth}}
	ids := make([]string, 0)
	for _, record := range nodesResult.([]*neo4j.Record) {
		idVal, _ := record.Get("id")
		id, _ := idVal.(string)
		if id == "" {
			continue
		}
		node := domain.GraphNode{ID: id, Type: "literature"}
		if labelsVal, ok := record.Get("labels"); ok {
			for _, label := range labelsVal.([]any) {
				if label == "Unresolved" {
					node.Type = "unresolved"
				}
			}
		}
		if v, _ := record.Get("title"); v != nil {
			node.Title, _ = v.(string)
		}
		if v, _ := record.Get("year"); v != nil {
			if y, ok := v.(int64); ok {
				node.Year = int(y)
			}
		}
		if v, _ := record.Get("authors"); v != nil {
			if s, ok := v.(string); ok && s != "" {
				var authors []domain.Author
				if json.Unmarshal([]byte(s), &authors) == nil {
					for _, a := range authors {
						node.Authors = append(node.Authors, a.Name)
					}
				}
			}
		}
		view.Nodes = append(view.Nodes, node)
		ids = append(ids, id)
	}

	edgesResult, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (a)-[r:CITES]->(b)
			WHERE coalesce(a.lid, a.node_id) IN $ids AND coalesce(b.lid, b.node_id) IN $ids
			RETURN coalesce(a.lid, a.node_id) AS src, coalesce(b.lid, b.node_id) AS dst,
				r.confidence AS confidence`,
			map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: neighborhood edges")
	}
	for _, record := range edgesResult.([]*neo4j.Record) {
		src, _ := record.Get("src")
		dst, _ := record.Get("dst")
		edge := domain.GraphEdge{Source: src.(string), Target: dst.(string), Type: "cites"}
		if c, _ := record.Get("confidence"); c != nil {
			edge.Weight, _ = c.(float64)
		}
		view.Edges = append(view.Edges, edge)
	}

	view.Meta.NodeCount = len(view.Nodes)
	view.Meta.EdgeCount = len(view.Edges)
	return view, nil
}

func (r *LiteratureRepository) Ping(ctx context.Context) error {
	if err := r.driver.VerifyConnectivity(ctx); err != nil {
		return domain.Ef(domain.KindProviderUnavailable, err, "neo4j: connectivity")
	}
	return nil
}

// nodeProps flattens a literature into node properties. Nested structures
// are stored as JSON strings; Neo4j properties are scalars and flat lists.
func nodeProps(lit *domain.Literature) (map[string]any, error) {
	authorsJSON, err := json.Marshal(lit.Metadata.Authors)
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: marshal authors")
	}
	refsJSON, err := json.Marshal(lit.References)
	if err != nil {
		return nil, domain.Ef(domain.KindInternal, err, "neo4j: marshal references")
	}

	props := map[string]any{
		"title":           lit.Metadata.Title,
		"authors_json":    string(authorsJSON),
		"year":            lit.Metadata.Year,
		"journal":         lit.Metadata.Journal,
		"abstract":        lit.Metadata.Abstract,
		"keywords":        lit.Metadata.Keywords,
		"source_priority": lit.Metadata.SourcePriority,
		"doi":             lit.Identifiers.DOI,
		"arxiv_id":        lit.Identifiers.ArxivID,
		"pmid":            lit.Identifiers.PMID,
		"fingerprint":     lit.Identifiers.Fingerprint,
		"source_urls":     lit.Identifiers.SourceURLs,
		"pdf_url":         lit.Content.PDFURL,
		"source_page_url": lit.Content.SourcePageURL,
		"fulltext":        lit.Content.Fulltext,
		"parsing_method":  lit.Content.ParsingMethod,
		"quality_score":   lit.Content.QualityScore,
		"references_json": string(refsJSON),
	}
	if lit.TaskInfo != nil {
		props["task_id"] = lit.TaskInfo.TaskID
		props["task_status"] = string(lit.TaskInfo.Status)
	}
	// Identifier fields only grow; an absent key leaves the stored value alone.
	for _, key := range []string{"doi", "arxiv_id", "pmid", "fingerprint"} {
		if props[key] == "" {
			delete(props, key)
		}
	}
	return props, nil
}

func literatureFromProps(props map[string]any) (*domain.Literature, error) {
	lit := &domain.Literature{
		LID: str(props, "lid"),
		Identifiers: domain.Identifiers{
			DOI:         str(props, "doi"),
			ArxivID:     str(props, "arxiv_id"),
			PMID:        str(props, "pmid"),
			Fingerprint: str(props, "fingerprint"),
			SourceURLs:  strs(props, "source_urls"),
		},
		Metadata: domain.Metadata{
			Title:          str(props, "title"),
			Year:           num(props, "year"),
			Journal:        str(props, "journal"),
			Abstract:       str(props, "abstract"),
			Keywords:       strs(props, "keywords"),
			SourcePriority: strs(props, "source_priority"),
		},
		Content: domain.Content{
			PDFURL:        str(props, "pdf_url"),
			SourcePageURL: str(props, "source_page_url"),
			Fulltext:      str(props, "fulltext"),
			ParsingMethod: str(props, "parsing_method"),
		},
	}
	if v, ok := props["quality_score"].(float64); ok {
		lit.Content.QualityScore = v
	}
	if s := str(props, "authors_json"); s != "" {
		if err := json.Unmarshal([]byte(s), &lit.Metadata.Authors); err != nil {
			return nil, domain.Ef(domain.KindInternal, err, "neo4j: unmarshal authors for %s", lit.LID)
		}
	}
	if s := str(props, "references_json"); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &lit.References); err != nil {
			return nil, domain.Ef(domain.KindInternal, err, "neo4j: unmarshal references for %s", lit.LID)
		}
	}
	if taskID := str(props, "task_id"); taskID != "" {
		lit.TaskInfo = &domain.TaskInfo{
			TaskID: taskID,
			Status: domain.ExecutionStatus(str(props, "task_status")),
		}
	}
	for _, key := range []string{"created_at", "updated_at"} {
		if s := str(props, key); s != "" {
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				if key == "created_at" {
					lit.CreatedAt = ts
				} else {
					lit.UpdatedAt = ts
				}
			}
		}
	}
	return lit, nil
}

func str(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

func strs(props map[string]any, key string) []string {
	raw, ok := props[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func num(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
