package npybuild

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrNondeterministicAPI is returned when the same API input produced a
// different signature set than the manifest recorded for it.
var ErrNondeterministicAPI = errors.New("api generation is not reproducible")

const generatedBanner = "/* This file is generated by npybuild. DO NOT EDIT. */\n"

// APIEntry is one function of a C API surface.
type APIEntry struct {
	Index      int
	ReturnType string
	Name       string
	Params     []string // full parameter declarations
	ParamTypes []string // parameter declarations without names
}

// Signature returns the canonical "ret name(types)" form.
func (e APIEntry) Signature() string {
	return fmt.Sprintf("%s %s(%s)", e.ReturnType, e.Name, strings.Join(e.ParamTypes, ", "))
}

// Prototype returns the declaration with parameter names.
func (e APIEntry) Prototype() string {
	return fmt.Sprintf("%s %s(%s)", e.ReturnType, e.Name, strings.Join(e.Params, ", "))
}

// API is an ordered C API surface parsed from order files.
type API struct {
	Entries []APIEntry
	raw     []byte
}

var prototypeRe = regexp.MustCompile(`^(.+?[\s*])(\w+)\s*\((.*)\)\s*;?$`)

// ParseAPIFiles reads the order files in sequence and returns the API.
//
// Each non-blank line that does not start with '#' is one C prototype.
// Indexes follow file order. A name listed twice is an error.
func ParseAPIFiles(paths []string) (*API, error) {
	if len(paths) == 0 {
		return nil, ErrEmptySources
	}

	api := &API{}
	seen := make(map[string]string)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		api.raw = append(api.raw, data...)
		api.raw = append(api.raw, 0)

		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			entry, err := parsePrototype(line)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
			}
			if where, dup := seen[entry.Name]; dup {
				return nil, fmt.Errorf("%s:%d: %s already declared at %s", path, lineNo, entry.Name, where)
			}
			seen[entry.Name] = fmt.Sprintf("%s:%d", path, lineNo)

			entry.Index = len(api.Entries)
			api.Entries = append(api.Entries, entry)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	return api, nil
}

func parsePrototype(line string) (APIEntry, error) {
	m := prototypeRe.FindStringSubmatch(line)
	if m == nil {
		return APIEntry{}, fmt.Errorf("not a C prototype: %q", line)
	}

	entry := APIEntry{
		ReturnType: normalizeSpace(m[1]),
		Name:       m[2],
	}

	for _, param := range splitParams(m[3]) {
		entry.Params = append(entry.Params, param)
		entry.ParamTypes = append(entry.ParamTypes, paramType(param))
	}

	return entry, nil
}

// splitParams splits a parameter list on commas outside parentheses.
func splitParams(s string) []string {
	var params []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				params = append(params, normalizeSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := normalizeSpace(s[start:]); last != "" {
		params = append(params, last)
	}
	if len(params) == 0 {
		params = []string{"void"}
	}
	return params
}

var paramNameRe = regexp.MustCompile(`^(.*?[\s*])(\w+)(\s*\[[^\]]*\])?$`)

// paramType strips the parameter name: "npy_intp *dims" -> "npy_intp *".
// Single-word parameters and parameters ending in a base type keyword
// ("long double", "unsigned long") are taken as bare types.
func paramType(param string) string {
	if param == "void" || param == "..." || strings.Contains(param, "(") {
		return param
	}
	m := paramNameRe.FindStringSubmatch(param)
	if m == nil {
		return param
	}
	typ := strings.TrimSpace(m[1])
	if isTypeQualifierOnly(typ) || (m[3] == "" && cBaseTypes[m[2]]) {
		return param
	}
	if m[3] != "" {
		typ += " *"
	}
	return typ
}

var cBaseTypes = map[string]bool{
	"void":     true,
	"char":     true,
	"short":    true,
	"int":      true,
	"long":     true,
	"float":    true,
	"double":   true,
	"signed":   true,
	"unsigned": true,
}

func isTypeQualifierOnly(typ string) bool {
	switch typ {
	case "", "const", "unsigned", "signed", "struct", "volatile":
		return true
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// InputDigest is the md5 of the raw order file contents.
func (a *API) InputDigest() string {
	sum := md5.Sum(a.raw)
	return hex.EncodeToString(sum[:])
}

// SignatureDigest is the md5 of the ordered canonical signatures.
func (a *API) SignatureDigest() string {
	h := md5.New()
	for _, e := range a.Entries {
		fmt.Fprintf(h, "%d %s\n", e.Index, e.Signature())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Header renders the private header for the given table and module guard.
func (a *API) Header(table, guard string) string {
	var sb strings.Builder
	sb.WriteString(generatedBanner)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "#ifdef %s\n\n", guard)
	for _, e := range a.Entries {
		fmt.Fprintf(&sb, "NPY_NO_EXPORT %s;\n", e.Prototype())
	}
	sb.WriteString("\n#else\n\n")
	sb.WriteString("#if defined(PY_ARRAY_UNIQUE_SYMBOL)\n")
	fmt.Fprintf(&sb, "#define %s PY_ARRAY_UNIQUE_SYMBOL\n", table)
	sb.WriteString("#endif\n\n")
	fmt.Fprintf(&sb, "extern void **%s;\n", table)
	for _, e := range a.Entries {
		fmt.Fprintf(&sb, "\n#define %s \\\n        (*(%s (*)(%s)) \\\n         %s[%d])\n",
			e.Name, e.ReturnType, strings.Join(e.ParamTypes, ", "), table, e.Index)
	}
	sb.WriteString("\n#endif\n")
	return sb.String()
}

// Source renders the C source defining the pointer table.
func (a *API) Source(table string) string {
	var sb strings.Builder
	sb.WriteString(generatedBanner)
	fmt.Fprintf(&sb, "\nvoid *%s[] = {\n", table)
	for _, e := range a.Entries {
		fmt.Fprintf(&sb, "        (void *) %s,\n", e.Name)
	}
	sb.WriteString("        NULL\n};\n")
	return sb.String()
}

// Manifest renders the export manifest.
func (a *API) Manifest() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# input: %s\n", a.InputDigest())
	fmt.Fprintf(&sb, "# signature: %s\n", a.SignatureDigest())
	for _, e := range a.Entries {
		fmt.Fprintf(&sb, "%d %s\n", e.Index, e.Signature())
	}
	return sb.String()
}

type manifestHeader struct {
	inputDigest     string
	signatureDigest string
}

func parseManifestHeader(content string) manifestHeader {
	var h manifestHeader
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "#") {
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "input":
			h.inputDigest = strings.TrimSpace(value)
		case "signature":
			h.signatureDigest = strings.TrimSpace(value)
		}
	}
	return h
}

// APIVersionMismatchError reports a C API whose signatures changed without
// the recorded API version being bumped.
type APIVersionMismatchError struct {
	Version  int
	Recorded string
	Current  string
}

func (e *APIVersionMismatchError) Error() string {
	return fmt.Sprintf("API mismatch detected for version %d: recorded checksum %s, current %s; "+
		"the C API version numbers have to be updated", e.Version, e.Recorded, e.Current)
}

// CheckAPIVersion compares the manifest's signature digest against the
// checksum recorded for version in a cversions file.
//
// The cversions file has one "0xNNNNNNNN = checksum" line per version, '#'
// comments allowed. A mismatch returns *APIVersionMismatchError.
func CheckAPIVersion(version int, manifestPath, cversionsPath string) error {
	manifest, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	current := parseManifestHeader(string(manifest)).signatureDigest
	if current == "" {
		return fmt.Errorf("manifest %s has no signature digest", manifestPath)
	}

	recorded, err := readCVersions(cversionsPath)
	if err != nil {
		return err
	}

	want, ok := recorded[version]
	if !ok {
		return fmt.Errorf("api version %d not recorded in %s", version, cversionsPath)
	}
	if want != current {
		return &APIVersionMismatchError{Version: version, Recorded: want, Current: current}
	}
	return nil
}

func readCVersions(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	versions := make(map[int]string)
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected 'version = checksum'", path, i+1)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(key), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		versions[int(v)] = strings.TrimSpace(value)
	}
	return versions, nil
}
