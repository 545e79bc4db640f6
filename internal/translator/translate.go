package translator

import (
	"fmt"
	"strconv"
)

// Entity is one node of a translation graph: the destination-bound fields
// plus the unresolved reference locations the Uploader must stitch in
// before this entity can be POSTed.
type Entity struct {
	Fields    map[string]interface{}
	Reference map[string]string // location ('/'-separated path within Fields) -> entity key

	// RefOrder preserves the order locations were added in. $listref
	// locations sharing a field (e.g. "creator/0", "creator/1", ...) must
	// be stitched back in index order -- the Uploader appends identifiers
	// onto a growing list, so processing them out of order would append
	// item 1 before item 0 exists.
	RefOrder []string
}

func newEntity() *Entity {
	return &Entity{Fields: map[string]interface{}{}, Reference: map[string]string{}}
}

// SetReference records location -> entityKey, preserving insertion order.
func (e *Entity) SetReference(location, entityKey string) {
	if _, exists := e.Reference[location]; !exists {
		e.RefOrder = append(e.RefOrder, location)
	}
	e.Reference[location] = entityKey
}

// DeleteReference removes location, keeping RefOrder consistent.
func (e *Entity) DeleteReference(location string) {
	if _, exists := e.Reference[location]; !exists {
		return
	}
	delete(e.Reference, location)
	for i, loc := range e.RefOrder {
		if loc == location {
			e.RefOrder = append(e.RefOrder[:i], e.RefOrder[i+1:]...)
			break
		}
	}
}

// Map renders e as the flat map[string]interface{} the destination client
// expects on the wire, with its reserved ".reference" field populated.
func (e *Entity) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		out[k] = v
	}
	ref := make(map[string]interface{}, len(e.Reference))
	for k, v := range e.Reference {
		ref[k] = v
	}
	out[".reference"] = ref
	return out
}

// Graph is a translation run's full set of entities, keyed by "/<type>" for
// the root and "$ref/<type>[/<index>]" for every sub-entity.
type Graph map[string]*Entity

// Loader resolves a translator type name (e.g. "organisation") to its
// parsed descriptor.
type Loader func(translatorType string) (*Node, error)

// Translator walks source records against translator descriptors, loaded
// lazily and cached by type.
type Translator struct {
	load  Loader
	cache map[string]*Node
}

// New builds a Translator that resolves translator types via load.
func New(load Loader) *Translator {
	return &Translator{load: load, cache: map[string]*Node{}}
}

func (t *Translator) nodeFor(translatorType string) (*Node, error) {
	if n, ok := t.cache[translatorType]; ok {
		return n, nil
	}
	n, err := t.load(translatorType)
	if err != nil {
		return nil, err
	}
	t.cache[translatorType] = n
	return n, nil
}

// Translate builds the translation graph for instance under translatorType.
// An empty Graph means no descriptor is known for translatorType -- the
// caller should treat this as a failed conversion. A root descriptor whose
// paths all miss still yields a graph holding an empty root entity.
func (t *Translator) Translate(instance map[string]interface{}, translatorType string) (Graph, error) {
	root, err := t.nodeFor(translatorType)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return Graph{}, nil
	}

	graph := Graph{}
	rootEntity, err := t.translateNode(instance, root, graph, nil)
	if err != nil {
		return nil, err
	}

	graph["/"+translatorType] = rootEntity
	return graph, nil
}

// translateNode interprets one KindMap descriptor node against instance,
// recording any sub-entities it spawns into graph. index is the position
// within an enclosing $listref iteration, or nil outside one; it is NOT
// propagated into nested "map"/"list" descriptor fields, matching the
// original's recursive call shape (those fields organize translator
// structure, not per-item source iteration).
func (t *Translator) translateNode(instance map[string]interface{}, node *Node, graph Graph, index *int) (*Entity, error) {
	entity := newEntity()

	for key, valNode := range node.Fields {
		switch valNode.Kind {
		case KindInt:
			entity.Fields[key] = valNode.IntVal

		case KindStr:
			entity.Fields[key] = valNode.StrVal

		case KindPath:
			if v, ok := resolvePath(instance, valNode.PathSegments, index); ok {
				if s, isStr := v.(string); isStr {
					entity.Fields[key] = s + valNode.Suffix
				} else {
					entity.Fields[key] = v
				}
			}
			// a miss aborts silently: the key is simply not set

		case KindRef:
			refKey := refKeyFor(valNode.RefType, index)
			if err := t.resolveRef(instance, valNode.RefType, refKey, graph, index); err != nil {
				return nil, err
			}
			entity.SetReference(key, refKey)

		case KindListRef:
			entity.Fields[key] = []interface{}{}
			list, ok := resolveListPath(instance, valNode.ListRefPath)
			if !ok {
				continue
			}
			for i := range list {
				ii := i
				refKey := fmt.Sprintf("$ref/%s/%d", valNode.RefType, i)
				locKey := fmt.Sprintf("%s/%d", key, i)
				if err := t.resolveRef(instance, valNode.RefType, refKey, graph, &ii); err != nil {
					return nil, err
				}
				entity.SetReference(locKey, refKey)
			}

		case KindMap:
			sub, err := t.translateNode(instance, valNode, graph, nil)
			if err != nil {
				return nil, err
			}
			for _, k := range sub.RefOrder {
				entity.SetReference(key+"/"+k, sub.Reference[k])
			}
			entity.Fields[key] = sub.Fields

		case KindList:
			synthetic := &Node{Kind: KindMap, Fields: make(map[string]*Node, len(valNode.Items))}
			for i, item := range valNode.Items {
				synthetic.Fields[strconv.Itoa(i)] = item
			}
			sub, err := t.translateNode(instance, synthetic, graph, nil)
			if err != nil {
				return nil, err
			}
			for _, k := range sub.RefOrder {
				entity.SetReference(key+"/"+k, sub.Reference[k])
			}
			var flattened []interface{}
			for i := range valNode.Items {
				if v, ok := sub.Fields[strconv.Itoa(i)]; ok {
					if lst, ok := v.([]interface{}); ok {
						flattened = append(flattened, lst...)
					} else {
						flattened = append(flattened, v)
					}
				}
			}
			entity.Fields[key] = flattened
		}
	}

	return entity, nil
}

func refKeyFor(refType string, index *int) string {
	if index != nil {
		return fmt.Sprintf("$ref/%s/%d", refType, *index)
	}
	return "$ref/" + refType
}

// resolveRef recursively translates refType into graph[refKey] if it is not
// already present (deduplication by key stops a self-referencing descriptor
// from recursing forever; the repeated reference points back at the key
// already in the graph).
func (t *Translator) resolveRef(instance map[string]interface{}, refType, refKey string, graph Graph, index *int) error {
	if _, exists := graph[refKey]; exists {
		return nil
	}
	graph[refKey] = newEntity() // placeholder breaks self-referencing recursion

	node, err := t.nodeFor(refType)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	sub, err := t.translateNode(instance, node, graph, index)
	if err != nil {
		return err
	}
	graph[refKey] = sub
	return nil
}

func resolvePath(instance interface{}, segments []string, index *int) (interface{}, bool) {
	current := instance
	for _, k := range segments {
		switch c := current.(type) {
		case map[string]interface{}:
			v, ok := c[k]
			if !ok {
				return nil, false
			}
			current = v
		case []interface{}:
			if n, err := strconv.Atoi(k); err == nil && len(c) > n {
				current = c[n]
			} else if k == "i" && index != nil && len(c) > *index {
				current = c[*index]
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return current, true
}

func resolveListPath(instance interface{}, segments []string) ([]interface{}, bool) {
	v, ok := resolvePath(instance, segments, nil)
	if !ok {
		return nil, false
	}
	lst, ok := v.([]interface{})
	return lst, ok
}
