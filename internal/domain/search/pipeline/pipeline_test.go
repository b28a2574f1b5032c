package pipeline

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
)

func mustDocs(t *testing.T, s string) []*document.Document {
	t.Helper()
	var out []*document.Document
	if err := document.DecodeArray(strings.NewReader(s), func(d *document.Document) error {
		out = append(out, d)
		return nil
	}); err != nil {
		t.Fatalf("decode docs: %v", err)
	}
	return out
}

func mustPipeline(t *testing.T, s string) Pipeline {
	t.Helper()
	var v document.Value
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode pipeline: %v", err)
	}
	p, err := Parse(v)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return p
}

func names(docs []*document.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		v, _ := d.Get("name")
		out[i], _ = v.AsString()
	}
	return out
}

func render(docs []*document.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

const seed = `[
	{"name":"Lightning Bolt","colors":["R"],"cmc":1},
	{"name":"Counterspell","colors":["U"],"cmc":2},
	{"name":"Black Lotus","colors":[],"cmc":0},
	{"name":"Progenitus","colors":["W","U","B","R","G"],"cmc":10}
]`

func TestRun_SeedScenario(t *testing.T) {
	docs := mustDocs(t, seed)
	ex := NewExecutor()

	tests := []struct {
		name     string
		pipeline string
		want     []string
	}{
		{"colorless", `[{"$match":{"colors":{"$size":0}}}]`, []string{"Black Lotus"}},
		{"all colors", `[{"$match":{"colors":{"$all":["W","U","B","R","G"]}}}]`, []string{"Progenitus"}},
		{"highest cmc", `[{"$sort":{"cmc":-1}},{"$limit":1}]`, []string{"Progenitus"}},
		{"text search", `[{"$match":{"$text":{"$search":"bolt"}}}]`, []string{"Lightning Bolt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(ex.Run(docs, mustPipeline(t, tt.pipeline)))
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("group count and max", func(t *testing.T) {
		out := ex.Run(docs, mustPipeline(t, `[{"$group":{"_id":null,"count":{"$sum":1},"max_cmc":{"$max":"$cmc"}}}]`))
		if got := render(out); got != `[{"_id":null,"count":4,"max_cmc":10}]` {
			t.Errorf("got %s", got)
		}
	})
}

func TestRun_EmptyInputAndPipeline(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, seed)

	if out := ex.Run(docs, New()); render(out) != render(docs) {
		t.Errorf("empty pipeline changed output: %s", render(out))
	}
	if out := ex.Run(nil, mustPipeline(t, `[{"$match":{"cmc":1}},{"$sort":{"cmc":1}},{"$limit":3}]`)); len(out) != 0 {
		t.Errorf("empty input produced %d docs", len(out))
	}
}

func TestRun_DoesNotMutateInput(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, seed)
	before := render(docs)

	out := ex.Run(docs, mustPipeline(t, `[{"$sort":{"cmc":1}},{"$project":{"name":1}}]`))
	out[0].Set("name", document.String("mutated"))

	if render(docs) != before {
		t.Errorf("input mutated:\n%s\nwant\n%s", render(docs), before)
	}
	if names(docs)[0] != "Lightning Bolt" {
		t.Error("input order changed")
	}
}

func TestRun_Pure(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, seed)
	p := mustPipeline(t, `[
		{"$match":{"$text":{"$search":"o"}}},
		{"$project":{"name":1,"cmc":1,"score":{"$meta":"textScore"}}},
		{"$group":{"_id":"$cmc","names":{"$addToSet":"$name"},"score":{"$max":{"$meta":"textScore"}}}},
		{"$sort":{"score":-1,"_id":1}}
	]`)

	first := render(ex.Run(docs, p))
	second := render(ex.Run(docs, p))
	if first != second {
		t.Errorf("runs differ:\n%s\n%s", first, second)
	}
}

func TestRun_ProjectScore(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[
		{"_id":1,"name":"Lightning Bolt","oracle_text":"deals 3 damage"},
		{"_id":2,"name":"Bolt","oracle_text":""},
		{"_id":3,"name":"Shock","oracle_text":"bolt-like"}
	]`)

	out := ex.Run(docs, mustPipeline(t, `[
		{"$match":{"$text":{"$search":"Bolt"}}},
		{"$project":{"name":1,"score":{"$meta":"textScore"}}}
	]`))
	want := `[{"_id":1,"name":"Lightning Bolt","score":0.8},{"_id":2,"name":"Bolt","score":1},{"_id":3,"name":"Shock","score":0.6}]`
	if got := render(out); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestRun_ProjectScoreWithoutSearch(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[{"name":"Bolt"}]`)

	out := ex.Run(docs, mustPipeline(t, `[{"$project":{"name":1,"score":{"$meta":"textScore"}}}]`))
	if out[0].Has("score") {
		t.Errorf("score attached without a text search: %s", out[0])
	}
}

func TestRun_PhraseIsRunScoped(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[{"name":"Bolt"}]`)

	ex.Run(docs, mustPipeline(t, `[{"$match":{"$text":{"$search":"bolt"}}}]`))
	out := ex.Run(docs, mustPipeline(t, `[{"$project":{"name":1,"score":1}}]`))
	if out[0].Has("score") {
		t.Error("phrase leaked from a previous run")
	}
}

func TestProjection_Modes(t *testing.T) {
	doc := mustDocs(t, `[{"_id":"x","name":"Bolt","cmc":1,"image_uris":{"small":"s","large":"l"},"lang":"en"}]`)[0]

	tests := []struct {
		name string
		spec string
		want string
	}{
		{"inclusion keeps id first", `{"cmc":1,"name":1}`, `{"_id":"x","cmc":1,"name":"Bolt"}`},
		{"inclusion without id", `{"_id":0,"name":1}`, `{"name":"Bolt"}`},
		{"inclusion missing field", `{"name":1,"missing":1}`, `{"_id":"x","name":"Bolt"}`},
		{"computed path", `{"_id":0,"thumb":"$image_uris.small"}`, `{"thumb":"s"}`},
		{"computed missing", `{"_id":0,"name":1,"thumb":"$nope"}`, `{"name":"Bolt"}`},
		{"exclusion removes all listed", `{"cmc":0,"lang":0}`, `{"_id":"x","name":"Bolt","image_uris":{"small":"s","large":"l"}}`},
		{"exclusion of id", `{"_id":0}`, `{"name":"Bolt","cmc":1,"image_uris":{"small":"s","large":"l"},"lang":"en"}`},
		{"exclusion nested", `{"image_uris.large":0,"_id":false}`, `{"name":"Bolt","cmc":1,"image_uris":{"small":"s"},"lang":"en"}`},
		{"mixed prefers inclusion", `{"name":1,"cmc":0}`, `{"_id":"x","name":"Bolt"}`},
		{"bool include", `{"name":true}`, `{"_id":"x","name":"Bolt"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := mustDocs(t, "["+tt.spec+"]")[0]
			got := ParseProjection(spec).Apply(doc)
			if got.String() != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestProjection_InclusionKeys(t *testing.T) {
	docs := mustDocs(t, `[
		{"_id":1,"a":1,"b":2,"c":3},
		{"_id":2,"a":1},
		{"b":null,"d":4}
	]`)
	projections := [][]string{{"a"}, {"a", "b"}, {"c", "d", "zzz"}, {"_id"}}

	for _, fields := range projections {
		p := IncludeFields(fields...)
		for _, d := range docs {
			var want []string
			if d.Has("_id") {
				want = append(want, "_id")
			}
			for _, f := range fields {
				if f != "_id" && d.Has(f) {
					want = append(want, f)
				}
			}
			got := p.Apply(d).Keys()
			sort.Strings(got)
			sort.Strings(want)
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Errorf("project %v over %s: keys %v, want %v", fields, d, got, want)
			}
		}
	}
}

func TestProjection_IDOnly(t *testing.T) {
	docs := mustDocs(t, `[{"_id":"x1","name":"Bolt","cmc":1}]`)
	spec := mustDocs(t, `[{"_id":1}]`)[0]

	got := ParseProjection(spec).Apply(docs[0])
	if got.String() != `{"_id":"x1"}` {
		t.Errorf("Apply = %s, want {\"_id\":\"x1\"}", got)
	}
}

func TestGroup_Accumulators(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[
		{"_id":"a1","oracle_id":"o1","name":"Bolt","price":1.5,"rank":null,"set":"lea"},
		{"_id":"a2","oracle_id":"o2","name":"Shock","price":"n/a","set":"m10"},
		{"_id":"a3","oracle_id":"o1","name":"Bolt (2)","price":2,"rank":7,"set":"lea"},
		{"_id":"a4","oracle_id":"o1","name":"Bolt (3)","rank":3,"set":"m10"}
	]`)

	out := ex.Run(docs, mustPipeline(t, `[{"$group":{
		"_id":"$oracle_id",
		"name":{"$first":"$name"},
		"count":{"$sum":1},
		"weighted":{"$sum":2},
		"total":{"$sum":"$price"},
		"best":{"$max":"$rank"},
		"sets":{"$addToSet":"$set"},
		"ghost":{"$addToSet":"$missing"},
		"skipped":{"$avg":"$price"}
	}}]`))

	want := `[{"_id":"o1","name":"Bolt","count":3,"weighted":6,"total":3.5,"best":7,"sets":["lea","m10"],"ghost":[null]},` +
		`{"_id":"o2","name":"Shock","count":1,"weighted":2,"total":0,"sets":["m10"],"ghost":[null]}]`
	if got := render(out); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestGroup_AddToSetRoot(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[{"k":1,"v":"a"},{"k":1,"v":"a"},{"k":1,"v":"b"}]`)

	out := ex.Run(docs, mustPipeline(t, `[{"$group":{"_id":"$k","cards":{"$addToSet":"$$ROOT"}}}]`))
	if got := render(out); got != `[{"_id":1,"cards":[{"k":1,"v":"a"},{"k":1,"v":"b"}]}]` {
		t.Errorf("got %s", got)
	}

	// The grouped copies and the input documents stay independent.
	docs[0].Set("v", document.String("changed"))
	out[0].Set("cards", document.Null())
	if got := render(docs[:1]); got != `[{"k":1,"v":"changed"}]` {
		t.Errorf("input = %s", got)
	}
	first := ex.Run(docs, mustPipeline(t, `[{"$group":{"_id":"$k","doc":{"$first":"$$ROOT"}}}]`))
	docs[0].Set("v", document.String("again"))
	if got := render(first); got != `[{"_id":1,"doc":{"k":1,"v":"changed"}}]` {
		t.Errorf("first = %s", got)
	}
}

func TestGroup_LiteralAndMissingKey(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[{"a":1},{"b":2}]`)

	out := ex.Run(docs, mustPipeline(t, `[{"$group":{"_id":"$a","n":{"$sum":1}}}]`))
	if got := render(out); got != `[{"_id":1,"n":1},{"_id":null,"n":1}]` {
		t.Errorf("path key: %s", got)
	}
	out = ex.Run(docs, mustPipeline(t, `[{"$group":{"_id":"all","n":{"$sum":1}}}]`))
	if got := render(out); got != `[{"_id":"all","n":2}]` {
		t.Errorf("literal key: %s", got)
	}
}

func TestSort_StableMultiKeyMissingAsEmpty(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, `[
		{"name":"a","s":1,"t":"x"},
		{"name":"b","s":2,"t":"y"},
		{"name":"c","s":1,"t":"y"},
		{"name":"d","t":"x"},
		{"name":"e","s":1,"t":"x"}
	]`)

	out := ex.Run(docs, mustPipeline(t, `[{"$sort":{"s":-1,"t":1}}]`))
	if got := strings.Join(names(out), ""); got != "baecd" {
		t.Errorf("desc/asc order = %s, want baecd", got)
	}

	out = ex.Run(docs, mustPipeline(t, `[{"$sort":{"s":1}}]`))
	if got := strings.Join(names(out), ""); got != "daceb" {
		t.Errorf("asc order = %s, want daceb", got)
	}
}

func TestLimit(t *testing.T) {
	ex := NewExecutor()
	docs := mustDocs(t, seed)

	if out := ex.Run(docs, mustPipeline(t, `[{"$limit":100}]`)); len(out) != 4 {
		t.Errorf("limit beyond length = %d docs", len(out))
	}
	if out := ex.Run(docs, mustPipeline(t, `[{"$limit":0}]`)); len(out) != 0 {
		t.Errorf("limit 0 = %d docs", len(out))
	}
}

func TestParse_UnsupportedStages(t *testing.T) {
	p := mustPipeline(t, `[{"$lookup":{}},{"$limit":-1},{"$limit":"x"},{"$match":{},"$sort":{}},5,{"$project":1}]`)
	for i, s := range p.Stages() {
		if _, ok := s.(Unsupported); !ok {
			t.Errorf("stage %d = %T, want Unsupported", i, s)
		}
	}

	docs := mustDocs(t, seed)
	if out := NewExecutor().Run(docs, p); len(out) != len(docs) {
		t.Errorf("unsupported stages changed length to %d", len(out))
	}
}

func TestParse_NotArray(t *testing.T) {
	if _, err := Parse(document.Object(document.New())); err == nil {
		t.Fatal("expected error for non-array pipeline")
	}
}

func TestPipeline_MarshalRoundTrip(t *testing.T) {
	in := `[{"$match":{"lang":{"$eq":"en"}}},{"$project":{"_id":0,"name":1,"thumb":"$image_uris.small","score":{"$meta":"textScore"}}},` +
		`{"$group":{"_id":"$oracle_id","cards":{"$addToSet":"$$ROOT"},"score":{"$max":{"$meta":"textScore"}},"n":{"$sum":1}}},` +
		`{"$sort":{"score":-1,"_id":1}},{"$limit":11}]`

	out, err := json.Marshal(mustPipeline(t, in))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("got  %s\nwant %s", out, in)
	}
}

func TestBuilders(t *testing.T) {
	p := New(
		Match{Filter: filter.New(filter.Where("cmc", filter.Gte(1)))},
		Sort{Keys: []SortKey{Desc("cmc")}},
		Limit{N: 2},
	)
	out := NewExecutor().Run(mustDocs(t, seed), p)
	if got := strings.Join(names(out), "|"); got != "Progenitus|Counterspell" {
		t.Errorf("got %s", got)
	}
}
