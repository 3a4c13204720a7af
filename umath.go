package npybuild

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed umath_defs.yaml
var defaultUmathTable []byte

// UfuncTable is the definition table the dispatch code is generated from.
type UfuncTable struct {
	Ufuncs []UfuncDef `yaml:"ufuncs"`
}

// UfuncDef describes one universal function.
type UfuncDef struct {
	Name     string            `yaml:"name"`
	Nin      int               `yaml:"nin"`
	Nout     int               `yaml:"nout"`
	Identity string            `yaml:"identity"` // zero, one or none
	Doc      string            `yaml:"doc"`
	Types    []TypeDescription `yaml:"types"`
}

// TypeDescription lists the type codes a ufunc supports through one kind of
// inner loop.
//
// Without Func each type gets its own TYPE_name loop. With Func the generic
// PyUFunc_<in>_<out> loop is used and Func (plus the type's C suffix) is
// passed as loop data.
type TypeDescription struct {
	Types string `yaml:"types"`
	Func  string `yaml:"func,omitempty"`
	Out   string `yaml:"out,omitempty"`
}

var typeNames = map[byte]string{
	'?': "BOOL",
	'b': "BYTE",
	'B': "UBYTE",
	'h': "SHORT",
	'H': "USHORT",
	'i': "INT",
	'I': "UINT",
	'l': "LONG",
	'L': "ULONG",
	'q': "LONGLONG",
	'Q': "ULONGLONG",
	'f': "FLOAT",
	'd': "DOUBLE",
	'g': "LONGDOUBLE",
	'F': "CFLOAT",
	'D': "CDOUBLE",
	'G': "CLONGDOUBLE",
	'O': "OBJECT",
}

// C math function suffix per type (sqrtf, sqrt, sqrtl).
var funcSuffixes = map[byte]string{
	'f': "f",
	'g': "l",
	'F': "f",
	'G': "l",
}

var identities = map[string]string{
	"":     "PyUFunc_None",
	"none": "PyUFunc_None",
	"zero": "PyUFunc_Zero",
	"one":  "PyUFunc_One",
}

// LoadUfuncTable reads a YAML definition table. An empty path loads the
// built-in table.
func LoadUfuncTable(path string) (*UfuncTable, error) {
	data := defaultUmathTable
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}

	var table UfuncTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse ufunc table %s: %w", path, err)
	}
	return &table, nil
}

type ufuncLoop struct {
	Func string
	Data string
	Sig  []string
}

type ufuncCode struct {
	Name     string
	Nin      int
	Nout     int
	Identity string
	Doc      string
	Loops    []ufuncLoop
}

func (t *UfuncTable) resolve() ([]ufuncCode, error) {
	seen := make(map[string]bool)
	var codes []ufuncCode

	for _, def := range t.Ufuncs {
		if def.Name == "" {
			return nil, fmt.Errorf("ufunc without name")
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("ufunc %s defined twice", def.Name)
		}
		seen[def.Name] = true

		if def.Nin < 1 || def.Nout < 1 {
			return nil, fmt.Errorf("ufunc %s: nin and nout must be positive", def.Name)
		}

		identity, ok := identities[def.Identity]
		if !ok {
			return nil, fmt.Errorf("ufunc %s: unknown identity %q", def.Name, def.Identity)
		}

		code := ufuncCode{
			Name:     def.Name,
			Nin:      def.Nin,
			Nout:     def.Nout,
			Identity: identity,
			Doc:      cQuote(def.Doc),
		}

		for _, td := range def.Types {
			loops, err := td.loops(def)
			if err != nil {
				return nil, err
			}
			code.Loops = append(code.Loops, loops...)
		}
		if len(code.Loops) == 0 {
			return nil, fmt.Errorf("ufunc %s has no type loops", def.Name)
		}

		codes = append(codes, code)
	}

	sort.Slice(codes, func(i, j int) bool { return codes[i].Name < codes[j].Name })
	return codes, nil
}

func (td TypeDescription) loops(def UfuncDef) ([]ufuncLoop, error) {
	if len(td.Out) > 1 {
		return nil, fmt.Errorf("ufunc %s: out must be a single type code, got %q", def.Name, td.Out)
	}

	var loops []ufuncLoop
	for i := 0; i < len(td.Types); i++ {
		in := td.Types[i]
		out := in
		if td.Out != "" {
			out = td.Out[0]
		}

		inName, ok := typeNames[in]
		if !ok {
			return nil, fmt.Errorf("ufunc %s: unknown type code %q", def.Name, in)
		}
		outName, ok := typeNames[out]
		if !ok {
			return nil, fmt.Errorf("ufunc %s: unknown type code %q", def.Name, out)
		}

		loop := ufuncLoop{}
		if td.Func == "" {
			loop.Func = inName + "_" + def.Name
			loop.Data = "(void *)NULL"
		} else {
			loop.Func = "PyUFunc_" + strings.Repeat(string(in), def.Nin) + "_" + strings.Repeat(string(out), def.Nout)
			loop.Data = "(void *)" + td.Func + funcSuffixes[in]
		}

		for j := 0; j < def.Nin; j++ {
			loop.Sig = append(loop.Sig, "NPY_"+inName)
		}
		for j := 0; j < def.Nout; j++ {
			loop.Sig = append(loop.Sig, "NPY_"+outName)
		}

		loops = append(loops, loop)
	}
	return loops, nil
}

func cQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + r.Replace(strings.TrimSpace(s)) + `"`
}

var umathTemplate = template.Must(template.New("umath").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`/* This file is generated by npybuild. DO NOT EDIT. */
{{range .}}
static PyUFuncGenericFunction {{.Name}}_functions[] = {
{{- range .Loops}}
    {{.Func}},
{{- end}}
};
static void *{{.Name}}_data[] = {
{{- range .Loops}}
    {{.Data}},
{{- end}}
};
static char {{.Name}}_signatures[] = {
{{- range .Loops}}
    {{join .Sig ", "}},
{{- end}}
};
{{end}}
static void
InitOperators(PyObject *dictionary) {
    PyObject *f;
{{range .}}
    f = PyUFunc_FromFuncAndData({{.Name}}_functions, {{.Name}}_data, {{.Name}}_signatures, {{len .Loops}},
                                {{.Nin}}, {{.Nout}}, {{.Identity}}, "{{.Name}}",
                                {{.Doc}}, 0);
    PyDict_SetItemString(dictionary, "{{.Name}}", f);
    Py_DECREF(f);
{{end -}}
}
`))

// MakeUmathCode renders the ufunc dispatch tables and InitOperators.
func MakeUmathCode(table *UfuncTable) (string, error) {
	codes, err := table.resolve()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := umathTemplate.Execute(&sb, codes); err != nil {
		return "", err
	}
	return sb.String(), nil
}
