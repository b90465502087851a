package web

import "github.com/TreeWu/mongo-perf/history"

type ResultsQuery struct {
	Label    string `form:"label"`
	Version  string `form:"version"`
	Platform string `form:"platform"`
	Limit    int64  `form:"limit"`
}

type RawQuery struct {
	Label string `form:"label" binding:"required"`
}

type HistoryQuery struct {
	Name  string `form:"name" binding:"required"`
	Label string `form:"label"`
	Limit int64  `form:"limit"`
}

type HistoryResponse struct {
	Name   string          `json:"name"`
	Points []history.Point `json:"points"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
