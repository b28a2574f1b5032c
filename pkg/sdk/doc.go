// Package docdex embeds the docdex card index in a Go program.
//
// The client keeps the catalogue in memory, records snapshot loads in a
// SQLite run ledger and, when given an embedder and a completer, answers
// rules questions from the indexed rules text.
//
// # Cards
//
//	client, _ := docdex.New(ctx)
//	defer client.Close()
//	f, _ := os.Open("default-cards.json")
//	run, _ := client.LoadCards(ctx, "2024-05-01", f)
//	page, _ := client.Search(ctx, docdex.SearchParams{
//	    Text:      "lightning",
//	    Colors:    []string{"R"},
//	    ColorMode: docdex.ColorsExactly,
//	})
//
// # Rules
//
//	client, _ := docdex.New(ctx, docdex.WithRules(embedder, completer))
//	_ = client.IndexRules(ctx, rulesFile)
//	_ = client.Ruling(ctx, "Does trample work with deathtouch?", 0, os.Stdout)
package docdex
