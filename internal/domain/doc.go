// Package domain models hydrological telemetry from the ANA/Hidroweb
// telemetry network and fire hotspots from NASA FIRMS.
//
// # Data Source
//
// Station readings come from the ANA "HidroinfoanaSerieTelemetricaAdotada"
// endpoint. A query names one station, a date filter type, a reference date
// and an interval, and the API answers with {"items": [...]} or, for a single
// reading, a bare object. The static station inventory is bundled as JSON and
// read once per process.
//
// # ANA Data Conventions
//
// Timestamps:
//
//	"2025-09-14 10:15:00.0"  local wall-clock time, no zone designator.
//	The station network reports in Brasília time, so every parse takes an
//	explicit offset (TZ_OFFSET_MINUTES, -180 by default).
//	Timestamps that fail to parse are kept, flagged "DATA_INVALIDA" and
//	sorted ahead of every valid record (see [SortByMeasurementDate]).
//
// Numeric values:
//
//	Chuva_Adotada (rain, mm), Cota_Adotada (level, cm) and Vazao_Adotada
//	(flow, m³/s) arrive as strings or numbers and may use a comma as the
//	decimal separator: "10,5" == 10.5. Records keep the original text;
//	[ParseDecimal] converts on demand.
//
// Intervals:
//
//	MINUTO_15, MINUTO_30, HORA_1..HORA_24, DIAS_2, DIAS_7, DIAS_14, DIAS_21,
//	DIAS_30. The strings are sent to the API verbatim.
//
// # Rain Accumulation
//
// Rain totals are rounded to two decimals. Windows come in two flavors:
// RELATIVE buckets count whole 24h steps back from the latest reading, and
// CALENDAR buckets follow local midnight. See [Accumulate].
//
// # Day Bucketing
//
// Daily statistics bucket a reading by the leading ten characters of its
// timestamp ("2025-09-14"), with no zone conversion. This differs from the
// zone-aware windows above and is kept that way on purpose; see [DayOf].
package domain
