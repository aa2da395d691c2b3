package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	indent = "    "
	prefix = ""
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

type YAMLSerializer struct{}

func (YAMLSerializer) Marshal(data any) ([]byte, error) {
	return yaml.Marshal(data)
}

// FileWriter writes through a temporary file in the target directory so a
// reader never sees a partial report.
type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}

// WriteToFile serializes data and hands it to writer.
func WriteToFile(data any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid filename: %w", os.ErrInvalid)
	}
	bytes, err := serializer.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := writer.Write(filename, bytes); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// WriteJSON writes data as indented JSON, replacing any existing file.
func WriteJSON(data any, filename string) error {
	return WriteToFile(data, filename, JSONSerializer{Prefix: prefix, Indent: indent}, FileWriter{Overwrite: true})
}

// Write picks YAML for .yaml and .yml files and JSON otherwise.
func Write(rep Report, filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return WriteToFile(rep, filename, YAMLSerializer{}, FileWriter{Overwrite: true})
	default:
		return WriteJSON(rep, filename)
	}
}
