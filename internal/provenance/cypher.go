package provenance

import (
	"fmt"
	"regexp"

	"github.com/Lego4005/scribe/internal/types"
)

// Node and relationship upserts are rendered from these templates. MERGE on
// the stable business id makes every write idempotent: re-running an upsert
// matches instead of creating, and the CASE expression reports which branch
// ran so the executor can classify created vs exists without a second query.
const (
	nodeUpsertTemplate = `MERGE (n:%s {id: $node_id})
ON CREATE SET n += $properties, n.created_at = datetime(), n.run_id = $run_id
ON MATCH SET n.last_updated = datetime()
RETURN n.id AS id, CASE WHEN n.created_at = n.last_updated OR n.last_updated IS NULL THEN 'created' ELSE 'exists' END AS outcome`

	relationshipUpsertTemplate = `MATCH (s:%s {id: $src_id}), (t:%s {id: $dst_id})
MERGE (s)-[r:%s]->(t)
ON CREATE SET r += $properties, r.created_at = datetime(), r.run_id = $run_id
ON MATCH SET r.last_updated = datetime()
RETURN r.created_at AS created_at, CASE WHEN r.created_at = r.last_updated OR r.last_updated IS NULL THEN 'created' ELSE 'exists' END AS outcome`
)

// Labels and relationship types cannot be parameterized in Cypher, so they
// are spliced into the query text. The identifier check is the injection
// guard: anything outside [A-Za-z_][A-Za-z0-9_]* is rejected at submission.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validateIdentifier rejects strings that cannot safely appear as a label or
// relationship type in spliced query text.
func validateIdentifier(what, s string) error {
	if s == "" {
		return types.NewError(types.OPERATION_INVALID, what+" cannot be empty")
	}
	if !identifierRe.MatchString(s) {
		return types.NewError(types.OPERATION_INVALID,
			fmt.Sprintf("%s %q is not a valid identifier (letters, digits, underscore; must not start with a digit)", what, s))
	}
	return nil
}

// buildNodeUpsert renders the idempotent node upsert for a spec. The spec is
// validated here so no unvetted label ever reaches the query text.
func buildNodeUpsert(spec NodeSpec, runID string) (string, map[string]any, error) {
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf(nodeUpsertTemplate, spec.Type)
	params := map[string]any{
		"node_id":    spec.ID,
		"properties": nonNilProps(spec.Properties),
		"run_id":     runID,
	}
	return query, params, nil
}

// buildRelationshipUpsert renders the idempotent relationship upsert for a
// spec. MATCH on both endpoints means a missing endpoint yields zero rows
// rather than an error; the executor classifies that as already-applied.
func buildRelationshipUpsert(spec RelationshipSpec, runID string) (string, map[string]any, error) {
	if err := spec.Validate(); err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf(relationshipUpsertTemplate, spec.SrcType, spec.DstType, spec.RelType)
	params := map[string]any{
		"src_id":     spec.SrcID,
		"dst_id":     spec.DstID,
		"properties": nonNilProps(spec.Properties),
		"run_id":     runID,
	}
	return query, params, nil
}

// nonNilProps substitutes an empty map for nil properties. Cypher's `+=`
// rejects null; an empty map is the correct no-op.
func nonNilProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
