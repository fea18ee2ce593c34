package config

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const redactedValue = "***"

var durationType = reflect.TypeOf(time.Duration(0))

// String renders the effective configuration as YAML keyed by the mapstructure
// names, so the output can be fed back as a config file.
func (c *Config) String() string {
	return renderYAML(configNode(reflect.ValueOf(c).Elem(), reflect.Value{}))
}

// Redacted renders the configuration like String but replaces every value that
// came from the secrets file. secrets is the second result of LoadWithSecrets.
func (c *Config) Redacted(secrets *Config) string {
	if secrets == nil {
		return c.String()
	}
	return renderYAML(configNode(reflect.ValueOf(c).Elem(), reflect.ValueOf(secrets).Elem()))
}

func renderYAML(node *yaml.Node) string {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(node); err != nil {
		return fmt.Sprintf("# failed to render configuration: %v\n", err)
	}
	_ = encoder.Close()
	return buf.String()
}

// configNode converts v into a YAML node. mask mirrors v; leaves set in mask
// are replaced by redactedValue. An invalid mask disables redaction.
func configNode(v, mask reflect.Value) *yaml.Node {
	if v.Kind() == reflect.Struct {
		node := &yaml.Node{Kind: yaml.MappingNode}
		t := v.Type()
		for i := range v.NumField() {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag := field.Tag.Get("mapstructure"); tag != "" && tag != "-" {
				name = tag
			}
			var fieldMask reflect.Value
			if mask.IsValid() {
				fieldMask = mask.Field(i)
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: name},
				configNode(v.Field(i), fieldMask),
			)
		}
		return node
	}

	if isSecret(mask) {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: redactedValue}
	}

	switch v.Kind() {
	case reflect.Slice:
		node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		if v.Len() > 0 {
			node.Style = 0
		}
		for i := range v.Len() {
			node.Content = append(node.Content, configNode(v.Index(i), reflect.Value{}))
		}
		return node
	case reflect.Map:
		node := &yaml.Node{Kind: yaml.MappingNode}
		iter := v.MapRange()
		for iter.Next() {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(iter.Key().Interface())},
				configNode(iter.Value(), reflect.Value{}),
			)
		}
		return node
	default:
		return scalarNode(v)
	}
}

func scalarNode(v reflect.Value) *yaml.Node {
	node := &yaml.Node{Kind: yaml.ScalarNode}
	switch {
	case v.Type() == durationType:
		node.Value = time.Duration(v.Int()).String()
	case v.Kind() == reflect.String:
		node.Value = v.String()
		node.Tag = "!!str"
	case v.Kind() == reflect.Bool:
		node.Value = strconv.FormatBool(v.Bool())
	default:
		node.Value = fmt.Sprint(v.Interface())
	}
	return node
}

// isSecret reports whether mask holds a value the secrets file provided.
func isSecret(mask reflect.Value) bool {
	if !mask.IsValid() {
		return false
	}
	switch mask.Kind() {
	case reflect.Slice, reflect.Map:
		return mask.Len() > 0
	default:
		return !mask.IsZero()
	}
}
