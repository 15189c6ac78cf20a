// Command lofi is the operator CLI for lofid: it triggers runs, inspects
// run status and the event log, checks daemon health, and manages the
// configuration file.
package main
