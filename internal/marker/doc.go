// Package marker implements narrative marker progression.
//
// A Sequence is the fixed, ordered list of markers a stage walks through,
// plus the subsequence of markers that close a pedagogical step. A Machine
// binds a Sequence to two state containers: the stage container holding
// the current marker and the story container holding the step index.
//
// Forward propagation: when the marker advances onto a step marker, the
// story's step_complete flag is raised and step_index moves to that step.
// Backward movement never touches the story.
//
// Reverse synchronization: when step_index is changed from outside (for
// example after state is restored from the remote store), the marker is
// moved to the matching step marker with forward propagation disabled, so
// the write does not echo back into the story.
//
// Skip rules are forward-only corrections: reaching a rule's From marker
// while advancing, with its condition true, moves the marker on to To.
package marker
