package assistant

// DemoQueries are run in order by `boxonomics ask --demo`.
var DemoQueries = []string{
	"What are Tyson Fury's career stats?",
	"What's the Reddit sentiment on Fury vs Usyk? Are fans more excited about one fighter?",
	"I'm thinking about betting on Fury vs Joshua. Give me a complete analysis including: " +
		"1) fighter stats comparison, 2) current betting odds, 3) recent news, " +
		"4) Reddit community sentiment, 5) your recommendation",
}

// ExampleQueries are suggested when an interactive session starts.
var ExampleQueries = []string{
	"Should I bet on Canelo vs Benavidez?",
	"Compare Reddit sentiment: Fury vs Usyk",
	"What are people saying about Crawford on Reddit?",
}
