package models

import "ihydro/internal/common/schema"

// Payload schemas shared by the client and the server. Sensor numerics are
// coerced because devices and older firmware report them as strings; summary
// counts and aggregates must already be numbers.
var (
	ReadingSchema = schema.Object(
		schema.F("timestamp", schema.String()),
		schema.F("temperature", schema.CoercedNumber()),
		schema.F("humidity", schema.CoercedNumber()),
		schema.F("tds", schema.CoercedNumber()),
		schema.F("ph", schema.CoercedNumber()),
	)

	HistorySchema = schema.Array(ReadingSchema)

	StatSchema = schema.Object(
		schema.F("min", schema.Number().Nullable()),
		schema.F("max", schema.Number().Nullable()),
		schema.F("avg", schema.Number().Nullable()),
	)

	SummarySchema = schema.Object(
		schema.F("range", schema.String()),
		schema.F("count", schema.Number()),
		schema.F("stats", schema.Object(
			schema.F(string(MetricTemperature), StatSchema),
			schema.F(string(MetricHumidity), StatSchema),
			schema.F(string(MetricTDS), StatSchema),
			schema.F(string(MetricPH), StatSchema),
		)),
	)

	ChatResponseSchema = schema.Object(
		schema.F("response", schema.String()),
	)

	ChatRequestSchema = schema.Object(
		schema.F("message", schema.String()),
	)
)

func ParseReading(data []byte) (Reading, error) {
	return schema.DecodeJSON[Reading](ReadingSchema, data)
}

func ParseHistory(data []byte) ([]Reading, error) {
	return schema.DecodeJSON[[]Reading](HistorySchema, data)
}

func ParseSummary(data []byte) (Summary, error) {
	return schema.DecodeJSON[Summary](SummarySchema, data)
}

func ParseChatResponse(data []byte) (ChatResponse, error) {
	return schema.DecodeJSON[ChatResponse](ChatResponseSchema, data)
}
