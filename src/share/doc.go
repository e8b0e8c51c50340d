// Package share implements the share entity of the share chain: its
// conversion to and from the wire form, the construction of the generation
// transaction that pays out the pool subsidy, the retarget rule, and the
// verification performed before a share is accepted by the tracker.
//
// Functions that depend on the history of a share take a Chain, which the
// tracker implements. Shares are immutable once built; their verification
// status is kept by the tracker, never on the share.
package share
