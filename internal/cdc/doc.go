// Package cdc turns video table change records into downstream mutations.
//
// Every record produces a createVideo call built from the record image
// (NewImage, falling back to OldImage) through a declarative FieldTable.
// The record's event name is classified into a MutationKind and, when the
// Policy allows it, a createVideoNotification call follows. The two calls
// are independent and failures never abort a batch: each record is consumed
// exactly once and its outcome reported in the BatchResult.
package cdc
