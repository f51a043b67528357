/*
Package ports defines the boundary interfaces of the Foreman engine.

Every external collaborator (work-item store, notifier, dispatcher, audit
recorder) is reached through a small single-purpose interface, so the engine
core stays free of I/O concerns and tests can swap in fakes or the Null*
defaults.
*/
package ports
