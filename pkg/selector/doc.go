/*
Package selector picks the next work item eligible for delegation.

Selection is a pure function of the fetched candidate list and two external
queries: candidates are visited in fetch order (external collaborators
pre-sort, e.g. oldest-first) and the first item passing every filter wins.
The result carries a full rejection trail so an operator can always see why
each candidate was passed over, even when nothing was selected.
*/
package selector
