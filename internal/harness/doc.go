// Package harness runs dispatch scenarios against a real runner.
//
// Every scenario gets a fresh registry, a fresh in-memory SQLite database
// (used both as the trace recorder and as the app's own database), a fixed
// flow token and a deterministic clock, so the recorded trace is identical
// across runs and can be compared against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: create_recipe
//	description: "What this scenario validates"
//	manifests:
//	  - bindings.cue
//	setup:
//	  - run: CreateRecipe
//	    input: { title: "Soup" }
//	flow:
//	  - run: CreateRecipe
//	    input: { title: "  Stew " }
//	    expect:
//	      outcome: ok
//	      result: { title: "Stew" }
//	  - run: CreateRecipe
//	    input: { title: "" }
//	    expect:
//	      outcome: error
//	      error: "title is required"
//	assertions:
//	  - type: trace_contains
//	    command: Notify
//	    input: "Created Recipe 2"
//	  - type: final_state
//	    table: recipes
//	    where: { id: 2 }
//	    expect: { title: "Stew" }
//
// # Assertion Types
//
//   - trace_contains: a command was invoked with matching input (subset match)
//   - trace_order: commands were first invoked in the given order
//   - trace_count: a command was invoked exactly N times
//   - final_state: one row of a table holds the expected values
//   - output_contains: the app wrote the given line
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/create_recipe.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario, app)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
