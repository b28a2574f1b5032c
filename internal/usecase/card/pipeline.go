package card

import (
	"regexp"

	"github.com/kailas-cloud/docdex/internal/domain"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
	"github.com/kailas-cloud/docdex/internal/domain/search/mode"
	"github.com/kailas-cloud/docdex/internal/domain/search/pipeline"
	"github.com/kailas-cloud/docdex/internal/domain/search/request"
)

// Fields copied from each printing into search results.
var printingFields = []string{
	"id", "name", "oracle_id", "lang", "oracle_text", "set_name", "set",
	"artist", "layout", "flavor_name", "flavor_text", "games", "promo",
	"rarity", "related_uris", "released_at", "reprint", "variation",
	"variation_of", "security_stamp", "watermark", "type_line", "mana_cost",
	"cmc", "colors", "edhrec_rank", "penny_rank",
}

const scoreField = "score"

// SearchPipeline builds the aggregation behind Search: match printings,
// project them, fold printings of one oracle card together, order by
// relevance and page.
func SearchPipeline(req *request.Request) pipeline.Pipeline {
	after := filter.New(filter.Where(document.IDField, filter.Exists(true)))
	if c := req.Cursor(); c != nil {
		after = c.After(scoreField, document.IDField)
	}

	return pipeline.New(
		pipeline.Match{Filter: searchFilter(req)},
		pipeline.Project{Projection: printingProjection()},
		pipeline.Group{Spec: oracleGroup()},
		pipeline.Sort{Keys: []pipeline.SortKey{pipeline.Desc(scoreField), pipeline.Asc(document.IDField)}},
		pipeline.Match{Filter: after},
		pipeline.Limit{N: req.PageSize() + 1},
	)
}

func searchFilter(req *request.Request) filter.Filter {
	f := filter.New(
		filter.Search(req.Text()),
		filter.Where(domain.CardLangField, filter.EqualTo(req.Lang())),
	)

	if sets := req.Sets(); len(sets) > 0 {
		f = f.And(filter.Where(domain.CardSetNameField, filter.In(anys(sets)...)))
	}

	if colors, ok := req.Colors(); ok {
		switch req.ColorMode() {
		case mode.Or:
			f = f.And(filter.Where("colors", filter.In(anys(colors)...)))
		case mode.And:
			f = f.And(filter.Where("colors", filter.All(anys(colors)...)))
		case mode.Exactly:
			f = f.And(filter.Where("colors", filter.All(anys(colors)...), filter.Size(len(colors))))
		}
	}

	if lo, hi := req.CMCRange(); lo != nil || hi != nil {
		var conds []filter.Condition
		if lo != nil {
			conds = append(conds, filter.Gte(*lo))
		}
		if hi != nil {
			conds = append(conds, filter.Lte(*hi))
		}
		f = f.And(filter.Where("cmc", conds...))
	}

	if types := req.Types(); len(types) > 0 {
		branches := make([]filter.Filter, len(types))
		for i, t := range types {
			branches[i] = filter.New(filter.Where("type_line", filter.Regex(regexp.QuoteMeta(t), "i")))
		}
		f = f.And(filter.AnyOf(branches...))
	}

	if rarities := req.Rarities(); len(rarities) > 0 {
		f = f.And(filter.Where("rarity", filter.In(anys(rarities)...)))
	}
	return f
}

func printingProjection() pipeline.Projection {
	fields := []pipeline.ProjectionField{{Name: document.IDField, Mode: pipeline.Exclude}}
	for _, name := range printingFields {
		fields = append(fields, pipeline.ProjectionField{Name: name, Mode: pipeline.Include})
	}
	fields = append(fields,
		pipeline.ProjectionField{Name: "thumbnail", Mode: pipeline.Compute, Path: "image_uris.small"},
		pipeline.ProjectionField{Name: "image", Mode: pipeline.Compute, Path: "image_uris.large"},
		pipeline.ProjectionField{Name: "imageXL", Mode: pipeline.Compute, Path: "image_uris.png"},
		pipeline.ProjectionField{Name: scoreField, Mode: pipeline.TextScore},
	)
	return pipeline.NewProjection(fields...)
}

func oracleGroup() pipeline.GroupSpec {
	return pipeline.GroupSpec{
		ID: pipeline.Path(domain.CardOracleIDField),
		Fields: []pipeline.GroupField{
			{Name: "name", Acc: pipeline.First, Expr: pipeline.Path("name")},
			{Name: "card_text", Acc: pipeline.First, Expr: pipeline.Path("oracle_text")},
			{Name: "card_count", Acc: pipeline.Sum, Expr: pipeline.Literal(1)},
			{Name: "cards", Acc: pipeline.AddToSet, Expr: pipeline.Root()},
			{Name: scoreField, Acc: pipeline.Max, Expr: pipeline.ScoreMeta()},
			{Name: "edhrec_rank", Acc: pipeline.Max, Expr: pipeline.Path("edhrec_rank")},
			{Name: "penny_rank", Acc: pipeline.Max, Expr: pipeline.Path("penny_rank")},
			{Name: "thumbnail", Acc: pipeline.First, Expr: pipeline.Path("thumbnail")},
		},
	}
}

func setsPipeline() pipeline.Pipeline {
	return pipeline.New(
		pipeline.Group{Spec: pipeline.GroupSpec{ID: pipeline.Path(domain.CardSetNameField)}},
		pipeline.Sort{Keys: []pipeline.SortKey{pipeline.Desc(document.IDField)}},
	)
}

func anys(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
