// Package locality сводит названия районов и пригородов к основному городу.
package locality

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultAliases: район/пригород (нижний регистр) -> город.
var defaultAliases = map[string]string{
	// Ireland, Dublin area
	"ballentree village":     "dublin",
	"south dublin":           "dublin",
	"dún laoghaire-rathdown": "dublin",
	"dun laoghaire-rathdown": "dublin",
	"dún laoghaire":          "dublin",
	"dun laoghaire":          "dublin",
	"fingal":                 "dublin",
	"dublin city":            "dublin",
	"county dublin":          "dublin",
	"ranelagh":               "dublin",
	"rathmines":              "dublin",
	"ballsbridge":            "dublin",
	"sandymount":             "dublin",
	"clontarf":               "dublin",
	"phibsborough":           "dublin",
	"drimnagh":               "dublin",
	"crumlin":                "dublin",
	"tallaght":               "dublin",
	"blanchardstown":         "dublin",
	"swords":                 "dublin",
}

// Table — неизменяемая таблица алиасов. Заполняется один раз при старте.
type Table struct {
	aliases map[string]string
}

// aliasFile — формат YAML-файла с дополнительными алиасами.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// Default возвращает встроенную таблицу.
func Default() *Table {
	return &Table{aliases: maps.Clone(defaultAliases)}
}

// New строит таблицу из встроенных алиасов и extra (extra перекрывает встроенные).
func New(extra map[string]string) *Table {
	t := Default()
	for k, v := range extra {
		k = key(k)
		v = key(v)
		if k == "" || v == "" {
			continue
		}
		t.aliases[k] = v
	}
	return t
}

// Load читает YAML вида
//
//	aliases:
//	  howth: dublin
//
// и объединяет его со встроенной таблицей. Пустой path — только встроенные.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file: %w", err)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse alias file: %w", err)
	}
	return New(f.Aliases), nil
}

// Normalize возвращает ключ города для сравнения: алиас, если он есть,
// иначе само название (обрезанное, в нижнем регистре).
func (t *Table) Normalize(city string) string {
	k := key(city)
	if mapped, ok := t.aliases[k]; ok {
		return mapped
	}
	return k
}

// Lookup возвращает город для алиаса, если такой есть.
func (t *Table) Lookup(city string) (string, bool) {
	mapped, ok := t.aliases[key(city)]
	return mapped, ok
}

func (t *Table) Len() int {
	return len(t.aliases)
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
