// Package persist keeps small state documents on disk. A document is replaced
// by writing a sibling temporary file and renaming it over the target, so a
// crash leaves either the previous or the next version.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const documentPerm = 0o644

// Codec turns a document into bytes and back.
type Codec interface {
	Marshal(doc any) ([]byte, error)
	Unmarshal(data []byte, doc any) error
	Ext() string
}

// JSON is the JSON codec. An empty Indent writes compact JSON.
type JSON struct {
	Indent string
}

// Marshal implements Codec. The output ends with a newline.
func (c JSON) Marshal(doc any) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if c.Indent == "" {
		data, err = json.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", c.Indent)
	}

	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}

	return append(data, '\n'), nil
}

// Unmarshal implements Codec.
func (JSON) Unmarshal(data []byte, doc any) error {
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Ext implements Codec.
func (JSON) Ext() string { return ".json" }

// Document is one state file: Dir/Name plus the codec's extension.
type Document struct {
	Dir   string
	Name  string
	Codec Codec
}

// At returns the document stored at path. The codec's extension replaces any
// extension path already has.
func At(path string, codec Codec) Document {
	base := filepath.Base(path)

	return Document{
		Dir:   filepath.Dir(path),
		Name:  base[:len(base)-len(filepath.Ext(base))],
		Codec: codec,
	}
}

// Path returns the file the document lives in.
func (d Document) Path() string {
	return filepath.Join(d.Dir, d.Name+d.Codec.Ext())
}

// Load decodes the document into doc. A document never saved yields an error
// matching os.ErrNotExist.
func (d Document) Load(doc any) error {
	data, err := os.ReadFile(d.Path())
	if err != nil {
		return fmt.Errorf("read %s: %w", d.Path(), err)
	}

	if err = d.Codec.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path(), err)
	}

	return nil
}

// Save replaces the document with doc.
func (d Document) Save(doc any) error {
	data, err := d.Codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.Path(), err)
	}

	return replaceFile(d.Path(), data)
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	err = errors.Join(writeSynced(tmp, data), tmp.Close())
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

func writeSynced(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}

	if err := f.Chmod(documentPerm); err != nil {
		return err
	}

	return f.Sync()
}
