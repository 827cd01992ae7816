/*
The mirror package implements dirmirror's change propagation. It keeps a target
directory tree in sync with a watch root by turning each filesystem
notification into whole-file or whole-directory copies and removals.

There are two kinds of trees:
1) Watch roots -- the source trees that the user edits.
2) Target roots -- the mirrors. Each target root is written to by exactly one
   Engine, so two WatchSpecs must never share a target.

An Engine first bootstraps its target by copying the whole watch root. After
that, it handles one Notification at a time. It doesn't trust the notification
about what exists: the source and target are re-checked right before each
mutation, so a notification for a file that has since disappeared is a no-op.
This is what makes Created and Modified interchangeable, and makes handling a
notification twice the same as handling it once.

Moves refresh the destination only. The target of the origin isn't removed,
so renaming a file leaves its old copy in the target until the next bootstrap
with pruning enabled.

Entries whose base name is in the IgnoreSet are never copied, removed, or
walked into.
*/
package mirror
