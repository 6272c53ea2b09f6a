// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/kuberahq/kubera/pkg/validation"
	"github.com/kuberahq/kubera/services/chat/datatypes"
)

func toolSpec(name, description string, parameters map[string]any) datatypes.ToolSpec {
	return datatypes.ToolSpec{Name: name, Description: description, Parameters: parameters}
}

// Quote is a point-in-time price snapshot for a symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	AsOf          string  `json:"as_of"`
}

// PricePoint is one bar of daily history.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// MarketData is the backend behind the builtin research tools.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	PriceHistory(ctx context.Context, symbol string, days int) ([]PricePoint, error)
	RenderChart(ctx context.Context, symbol, chartType string, days int) (string, error)
}

// RegisterBuiltins installs the stock research tools against the given
// market data backend.
func RegisterBuiltins(r *Registry, md MarketData) error {
	builtins := []Tool{
		{
			Spec: toolSpec("get_stock_quote",
				"Get the current price quote for a stock symbol.",
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"symbol": map[string]any{
							"type":        "string",
							"description": "Ticker symbol, e.g. AAPL",
						},
					},
					"required": []string{"symbol"},
				}),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				symbol, err := symbolArg(args)
				if err != nil {
					return nil, err
				}
				quote, err := md.Quote(ctx, symbol)
				if err != nil {
					return nil, fmt.Errorf("quote %s: %w", symbol, err)
				}
				return quote, nil
			},
		},
		{
			Spec: toolSpec("get_price_history",
				"Get daily closing prices for a stock over a number of days.",
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"symbol": map[string]any{
							"type":        "string",
							"description": "Ticker symbol, e.g. AAPL",
						},
						"days": map[string]any{
							"type":        "integer",
							"description": "Lookback in days, 1-365. Default 30.",
						},
					},
					"required": []string{"symbol"},
				}),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				symbol, err := symbolArg(args)
				if err != nil {
					return nil, err
				}
				days := intArg(args, "days", 30, 1, 365)
				history, err := md.PriceHistory(ctx, symbol, days)
				if err != nil {
					return nil, fmt.Errorf("price history %s: %w", symbol, err)
				}
				return map[string]any{"symbol": symbol, "days": days, "history": history}, nil
			},
		},
		{
			Spec: toolSpec("create_price_chart",
				"Render a price chart for a stock and return its URL.",
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"symbol": map[string]any{
							"type":        "string",
							"description": "Ticker symbol, e.g. AAPL",
						},
						"chart_type": map[string]any{
							"type":        "string",
							"description": "Chart style: line or candlestick. Default line.",
						},
						"days": map[string]any{
							"type":        "integer",
							"description": "Lookback in days, 1-365. Default 30.",
						},
					},
					"required": []string{"symbol"},
				}),
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				symbol, err := symbolArg(args)
				if err != nil {
					return nil, err
				}
				chartType, _ := args["chart_type"].(string)
				if chartType != "candlestick" {
					chartType = "line"
				}
				days := intArg(args, "days", 30, 1, 365)
				url, err := md.RenderChart(ctx, symbol, chartType, days)
				if err != nil {
					return nil, fmt.Errorf("render chart %s: %w", symbol, err)
				}
				return map[string]any{
					"symbol":     symbol,
					"chart_url":  url,
					"chart_type": chartType,
					"days":       days,
				}, nil
			},
		},
	}

	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func symbolArg(args map[string]any) (string, error) {
	raw, _ := args["symbol"].(string)
	symbol, err := validation.SanitizeTicker(raw)
	if err != nil {
		return "", fmt.Errorf("symbol: %w", err)
	}
	return symbol, nil
}

func intArg(args map[string]any, key string, def, min, max int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	// JSON numbers decode as float64.
	f, ok := v.(float64)
	if !ok {
		return def
	}
	n := int(f)
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// StaticMarketData serves canned values. It backs local development
// and tests when no market data service is configured.
type StaticMarketData struct{}

func (StaticMarketData) Quote(_ context.Context, symbol string) (Quote, error) {
	return Quote{
		Symbol:        symbol,
		Price:         187.42,
		Change:        1.13,
		ChangePercent: 0.61,
		AsOf:          time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (StaticMarketData) PriceHistory(_ context.Context, symbol string, days int) ([]PricePoint, error) {
	points := make([]PricePoint, 0, days)
	base := 180.0
	for i := days - 1; i >= 0; i-- {
		date := time.Now().UTC().AddDate(0, 0, -i).Format("2006-01-02")
		points = append(points, PricePoint{Date: date, Close: base + float64(days-i)*0.25})
	}
	return points, nil
}

func (StaticMarketData) RenderChart(_ context.Context, symbol, chartType string, days int) (string, error) {
	return fmt.Sprintf("https://charts.kuberahq.com/%s/%s/%dd.png", symbol, chartType, days), nil
}
