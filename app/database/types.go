package database

import (
	"time"
)

// Source is a configured feed origin and its fetch policy.
type Source struct {
	ID              string // Database UUID
	Name            string // Configuration identifier derived from filename
	URL             string
	Enabled         bool
	IntervalMinutes int
	MaxEntries      int // 0 = unlimited
	RecentOnly      bool
	DedupStrategy   string // empty = process default
	LastFetchedAt   *time.Time
	ETag            string
	LastModified    string
	ErrorCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Entry is the durable record a candidate entry becomes once it survives
// deduplication and filtering.
type Entry struct {
	ID               string
	SourceID         string
	GUID             string
	Link             string
	Title            string
	Summary          string
	Content          string
	Language         string
	Tags             []string
	PublishedAt      *time.Time
	FullText         string
	Keywords         []string
	GeneratedSummary string
	CreatedAt        time.Time
}

// FilterRule is one stored filter rule. Position preserves declaration order
// within a priority level.
type FilterRule struct {
	ID       string
	SourceID string // empty = global rule
	Kind     string // keyword | regex | tag | language
	Mode     string // include | exclude
	Pattern  string
	Priority int
	Position int
	Enabled  bool
}

// SignatureSet holds everything previously seen for one source, split by
// signature kind so each dedup check stays a set lookup.
type SignatureSet struct {
	Links  map[string]struct{}
	Titles map[string]struct{}
	Hashes map[string]struct{}
	Bodies []string // normalized body texts, kept for similarity checks
}

func NewSignatureSet() *SignatureSet {
	return &SignatureSet{
		Links:  make(map[string]struct{}),
		Titles: make(map[string]struct{}),
		Hashes: make(map[string]struct{}),
	}
}

// Signature is one derived dedup value to be committed for a source.
type Signature struct {
	Kind  string // link | title | hash | body
	Value string
}
