/*
Package service implements the Service Runtime (§4.F): the per-service
state machine driving one packaged service through
Uninitialized -> Initialized -> {Up, Down}, ticked once per Manager
iteration via Unit.Tick(census) (bool, error).

A Unit owns the package's resolved Cfg, Hook Table, and Configuration
Compiler, and issues Spawn/Restart/Terminate calls against a Launcher
Client. It does not own its process's lifetime directly: termination is
handed off to pkg/terminator. Lifecycle and health transitions are
published to the optional events.Broker in Unit.Broker and are also
visible through the Unit's exported state.
*/
package service
