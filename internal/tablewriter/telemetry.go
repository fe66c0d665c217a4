// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package tablewriter

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var openPartitionsGauge otelmetric.Int64UpDownCounter

func init() {
	initTelemetry()
}

func initTelemetry() {
	meter := otel.Meter("github.com/cardinalhq/lakewriter/internal/tablewriter")

	var err error
	openPartitionsGauge, err = meter.Int64UpDownCounter(
		"lakewriter.fanout.partitions.open",
		otelmetric.WithDescription("Number of partitions with an open writer across fanout writers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create partitions.open gauge: %w", err))
	}
}
