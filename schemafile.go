package literecord

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type schemaFile struct {
	Schemas []*Schema `yaml:"schemas"`
}

// LoadSchemas reads schema declarations from a YAML file.
func LoadSchemas(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schemas: %w", err)
	}
	schemas, err := ParseSchemas(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return schemas, nil
}

// ParseSchemas decodes a YAML document of the form
//
//	schemas:
//	  - name: users
//	    table: users
//	    id: [id]
//	    visible: [id, name]
func ParseSchemas(data []byte) ([]*Schema, error) {
	var f schemaFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding schemas: %w", err)
	}
	return f.Schemas, nil
}

// ParseFilters decodes a JSON or YAML object into Filters, keeping the
// key order of the document.
func ParseFilters(data []byte) (Filters, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Filters{}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding filters: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("decoding filters: expected an object at line %d", root.Line)
	}
	v, err := nodeValue(root)
	if err != nil {
		return nil, err
	}
	return v.(Filters), nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.MappingNode:
		f := make(Filters, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			f = append(f, Param{Key: n.Content[i].Value, Value: v})
		}
		return f, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding filter value at line %d: %w", n.Line, err)
		}
		return v, nil
	}
}
