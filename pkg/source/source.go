// Package source validates, reads and decodes the files a session loads.
package source

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	MiB = 1024 * 1024

	MaxTraceSize  = 50 * MiB
	MaxConfigSize = 10 * MiB
)

type Rule struct {
	Kind    string
	Ext     string
	MaxSize int64
}

var (
	TraceRule  = Rule{Kind: "trace file", Ext: ".txt", MaxSize: MaxTraceSize}
	ConfigRule = Rule{Kind: "config file", Ext: ".xml", MaxSize: MaxConfigSize}
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Validate checks name and size against rule. It never touches the filesystem.
func Validate(name string, size int64, rule Rule) error {
	if err := validateExt(name, rule); err != nil {
		return err
	}
	if rule.MaxSize > 0 && size > rule.MaxSize {
		return &ValidationError{Name: name, Kind: rule.Kind, Err: fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge, FormatSize(size), FormatSize(rule.MaxSize))}
	}
	if size == 0 {
		return &ValidationError{Name: name, Kind: rule.Kind, Err: ErrEmptyFile}
	}
	return nil
}

func validateExt(name string, rule Rule) error {
	if !strings.EqualFold(filepath.Ext(name), rule.Ext) {
		return &ValidationError{Name: name, Kind: rule.Kind, Err: fmt.Errorf("%w: want %s", ErrWrongExtension, rule.Ext)}
	}
	return nil
}

// ReadFile validates path against rule and returns its contents. The
// extension is checked before the file is touched, and the read stops one
// byte past the size cap.
func ReadFile(path string, rule Rule) ([]byte, error) {
	if err := validateExt(path, rule); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Name: path, Err: err}
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, &ReadError{Name: path, Err: err}
	}
	if err := Validate(fi.Name(), fi.Size(), rule); err != nil {
		return nil, err
	}
	r := io.Reader(f)
	if rule.MaxSize > 0 {
		r = io.LimitReader(f, rule.MaxSize+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &ReadError{Name: path, Err: err}
	}
	// The file may have changed since the stat.
	if err := Validate(fi.Name(), int64(len(b)), rule); err != nil {
		return nil, err
	}
	return b, nil
}

// DecodeText returns b as a string. Dumps that are not valid UTF-8 are
// decoded as GB18030, which is what the controller service tools write.
func DecodeText(name string, b []byte) (string, error) {
	b = bytes.TrimPrefix(b, utf8BOM)
	if utf8.Valid(b) {
		return string(b), nil
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(b)
	if err != nil {
		return "", &ReadError{Name: name, Err: fmt.Errorf("decode: %w", err)}
	}
	return string(out), nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
