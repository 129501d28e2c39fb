// Package domain contains the core data types of the dialog engine:
// inbound messages, outbound responses, history steps, node statuses and the
// serializable session snapshot. It has no behavior beyond constructors and
// is imported by every other package.
package domain
