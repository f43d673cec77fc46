package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeDocument parses a YAML document into an ordered Document.
// Empty input and an explicit null both decode to an empty document; any
// other top-level value that is not a mapping is rejected.
func DecodeDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	doc := NewDocument()
	if err := doc.UnmarshalYAML(&root); err != nil {
		return nil, err
	}
	return doc, nil
}

// EncodeDocument renders a document as YAML, preserving key order.
func EncodeDocument(d *Document) ([]byte, error) {
	return yaml.Marshal(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Document) UnmarshalYAML(value *yaml.Node) error {
	node := value
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			node = &yaml.Node{}
		} else {
			node = node.Content[0]
		}
	}
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}

	if d.values == nil {
		d.values = make(map[string]any)
	}

	switch {
	case node.Kind == 0:
		return nil
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		return nil
	case node.Kind != yaml.MappingNode:
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, kindName(node.Kind))
	}

	parsed, err := newNodeDecoder().mapping(node)
	if err != nil {
		return err
	}
	for _, k := range parsed.keys {
		d.Set(k, parsed.values[k])
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d *Document) MarshalYAML() (interface{}, error) {
	return encodeValue(d)
}

// nodeDecoder converts yaml nodes into Documents, lists and scalars. It
// tracks the anchors being expanded so that an anchor referring to itself
// is an error instead of endless recursion.
type nodeDecoder struct {
	expanding map[*yaml.Node]bool
}

func newNodeDecoder() *nodeDecoder {
	return &nodeDecoder{expanding: make(map[*yaml.Node]bool)}
}

func (nd *nodeDecoder) node(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		target := node.Alias
		if target == nil {
			return nil, fmt.Errorf("line %d: unknown anchor %q", node.Line, node.Value)
		}
		if nd.expanding[target] {
			return nil, fmt.Errorf("line %d: anchor %q value contains itself", node.Line, node.Value)
		}
		nd.expanding[target] = true
		defer delete(nd.expanding, target)
		return nd.node(target)
	case yaml.MappingNode:
		return nd.mapping(node)
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := nd.node(child)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node %s", node.Line, kindName(node.Kind))
	}
}

// mapping keeps declaration order. A key repeated in the same mapping
// keeps its first position and takes the last value. Merge keys (<<) only
// fill in keys the mapping does not declare itself.
func (nd *nodeDecoder) mapping(node *yaml.Node) (*Document, error) {
	doc := NewDocument()
	var merges []*yaml.Node

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}
		if keyNode.Tag == "!!merge" {
			merges = append(merges, valNode)
			continue
		}
		v, err := nd.node(valNode)
		if err != nil {
			return nil, err
		}
		doc.Set(keyNode.Value, v)
	}

	for _, m := range merges {
		src, err := nd.node(m)
		if err != nil {
			return nil, err
		}
		switch t := src.(type) {
		case *Document:
			mergeAbsent(doc, t)
		case []any:
			for _, item := range t {
				if sub, ok := item.(*Document); ok {
					mergeAbsent(doc, sub)
				}
			}
		default:
			return nil, fmt.Errorf("line %d: merge value must be a mapping", m.Line)
		}
	}

	return doc, nil
}

func mergeAbsent(dst, src *Document) {
	for _, k := range src.keys {
		dst.SetIfAbsent(k, src.values[k])
	}
}

func encodeValue(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Document:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if t == nil {
			return node, nil
		}
		for _, k := range t.keys {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
			valNode, err := encodeValue(t.values[k])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, valNode)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t {
			child, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return node, nil
	}
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "empty"
	}
}
