package domain

// Document store collection names.
const (
	CardsCollection        = "cards"
	PriceHistoryCollection = "card_prices_daily"
	RankHistoryCollection  = "edhrec_daily"
	RulesCollection        = "rules"
	DnDRulesCollection     = "dnd_rules"
)

// Card document fields the query and ingestion layers rely on.
const (
	CardIDField       = "id"
	CardOracleIDField = "oracle_id"
	CardNameField     = "name"
	CardNameSearch    = "name_search"
	CardLangField     = "lang"
	CardSetField      = "set"
	CardSetNameField  = "set_name"
	CardReleasedField = "released_at"
	CardPricesField   = "prices"
	CardEDHRECField   = "edhrec_rank"
)
