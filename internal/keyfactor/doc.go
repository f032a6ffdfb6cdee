// Package keyfactor models key factor drafts: the driver, base rate, news and
// question link proposals a forecaster attaches to a comment.
//
// Draft is a closed sum type. Every concrete draft is a pointer type so the
// host surface can edit it in place; Clone produces the immutable snapshots
// the suggestion workflow rolls back to. Validate is pure and reports field
// level messages keyed by the wire field name.
package keyfactor
