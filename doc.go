// Package session gates access to a shared scheduling tool by resolved user
// role and keeps the shared cycle record synchronized across every signed-in
// client.
//
// Session lifecycle:
//   - Manager composes the identity provider's change stream with a role
//     lookup against the document store into one AuthState. Each identity
//     change bumps a generation counter so a role resolution that finishes
//     after the identity has already changed again is discarded instead of
//     being applied to the wrong session.
//   - A failed or unrecognized role lookup is fatal for that sign-in: the
//     manager forces a sign-out and surfaces the error through the fatal
//     notice handler. It never defaults to a role.
//
// Cycle synchronization:
//   - CycleSync caches the singleton cycle document through a push
//     subscription that is active exactly while the session is authorized.
//     Transitions (StartCycle, BlockCycle, EndCycle) are full-record
//     overwrites; concurrent writers resolve last-write-wins and the local
//     cache only ever updates from the subscription, never optimistically.
//
// Registration:
//   - RegisterEmployeeHandler creates an identity with a throwaway generated
//     credential on a secondary provider handle, signs that throwaway session
//     back out, and writes the user and employee profile records. The alias
//     uniqueness check runs before any write; the identity/profile boundary is
//     not transactional and the orphaned-identity risk is accepted.
package session
