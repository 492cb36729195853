package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobmcallan/toolhost/internal/tool"
)

const (
	DefaultPackage = "truffle"
	DefaultService = "Truffle"
)

// Options controls the names used in the generated document.
type Options struct {
	Package string
	Service string
}

func (o Options) withDefaults() Options {
	if o.Package == "" {
		o.Package = DefaultPackage
	}
	if o.Service == "" {
		o.Service = DefaultService
	}
	return o
}

// GenerationError reports a failure producing or writing the interface
// definition document.
type GenerationError struct {
	Path string
	Op   string
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("generate schema: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("generate schema %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Document is the result of one generation pass.
type Document struct {
	Package  string
	Service  string
	Methods  []string
	Messages []*Message
}

// RequestName and ResponseName return the synthesized message names for a
// tool.
func RequestName(toolName string) string  { return toolName + "Request" }
func ResponseName(toolName string) string { return toolName + "Response" }

// Build maps every spec into a Document: one request and one response
// message per tool, followed by composite messages in first-seen order.
// Responses always carry the return value in a single "result" field.
func Build(specs []tool.Spec, opts Options) (*Document, error) {
	opts = opts.withDefaults()
	if !validPackage(opts.Package) {
		return nil, &GenerationError{Op: "options", Err: fmt.Errorf("invalid package name %q", opts.Package)}
	}
	if !tool.IsIdentifier(opts.Service) {
		return nil, &GenerationError{Op: "options", Err: fmt.Errorf("invalid service name %q", opts.Service)}
	}

	mapper := NewMapper(nil)
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		name := spec.ResolvedName()
		if seen[name] {
			return nil, &tool.RegistrationError{Tool: name, Member: spec.Member, Reason: "duplicate tool name"}
		}
		seen[name] = true
		mapper.Synthesize(RequestName(name), name)
		mapper.Synthesize(ResponseName(name), name)
	}

	doc := &Document{Package: opts.Package, Service: opts.Service}
	leaves := make([]*Message, 0, 2*len(specs))
	for _, spec := range specs {
		name := spec.ResolvedName()
		doc.Methods = append(doc.Methods, name)

		req := &Message{Name: RequestName(name)}
		for i, p := range spec.Params {
			token, err := mapper.Token(p.Type)
			if err != nil {
				return nil, annotate(err, spec)
			}
			req.Fields = append(req.Fields, MessageField{Token: token, Name: p.Name, Number: i + 1})
		}

		token, err := mapper.Token(spec.Returns)
		if err != nil {
			return nil, annotate(err, spec)
		}
		resp := &Message{
			Name:   ResponseName(name),
			Fields: []MessageField{{Token: token, Name: "result", Number: 1}},
		}
		leaves = append(leaves, req, resp)
	}

	doc.Messages = append(leaves, mapper.Definitions().Messages()...)
	return doc, nil
}

// annotate fills in the tool on registration errors raised while mapping
// its types.
func annotate(err error, spec tool.Spec) error {
	var regErr *tool.RegistrationError
	if errors.As(err, &regErr) && regErr.Tool == "" {
		regErr.Tool = spec.ResolvedName()
		regErr.Member = spec.Member
	}
	return err
}

// Render writes the document in proto3 text form.
func (d *Document) Render() []byte {
	var b bytes.Buffer
	b.WriteString("syntax = \"proto3\";\n\n")
	fmt.Fprintf(&b, "package %s;\n\n", d.Package)
	fmt.Fprintf(&b, "service %s {\n", d.Service)
	for _, m := range d.Methods {
		fmt.Fprintf(&b, "  rpc %s(%s) returns (%s);\n", m, RequestName(m), ResponseName(m))
	}
	b.WriteString("}\n")
	for _, msg := range d.Messages {
		fmt.Fprintf(&b, "\nmessage %s {\n", msg.Name)
		for _, f := range msg.Fields {
			fmt.Fprintf(&b, "  %s %s = %d;\n", f.Token, f.Name, f.Number)
		}
		b.WriteString("}\n")
	}
	return b.Bytes()
}

// Generate builds and renders the document for specs.
func Generate(specs []tool.Spec, opts Options) ([]byte, error) {
	doc, err := Build(specs, opts)
	if err != nil {
		return nil, err
	}
	return doc.Render(), nil
}

// WriteFile replaces path with content. The document is written to a
// temporary file in the same directory and renamed into place, so readers
// never observe a partial or appended file.
func WriteFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &GenerationError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &GenerationError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return &GenerationError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &GenerationError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &GenerationError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &GenerationError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

func validPackage(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if !tool.IsIdentifier(part) {
			return false
		}
	}
	return true
}
