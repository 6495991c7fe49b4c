// Command zyppcore exposes the CLI surface spec.md §6 names (addRepository,
// removeRepository, modifyRepository, refresh, clean, addService,
// removeService, modifyService, refreshServices, providePackage), plus
// listRepositories/listServices and watch, supplemented beyond spec.md's
// narrow surface for inspecting and externally-reconciling known state. It
// is a thin cobra front-end over pkg/context, pkg/repomanager,
// pkg/packageprovider, and pkg/reports — most callers are expected to use
// those packages directly (spec.md §1: "the user-facing CLI" beyond this
// surface is out of scope).
package main

func main() {
	Execute()
}
