// Package policy checks effective profile configurations with Open Policy
// Agent (OPA) rego policies.
//
// # Architecture
//
// The package has three parts:
//
//  1. Engine - compiles policies once and evaluates them against a profile
//  2. Loader - loads .rego and .json policy files and watches them for changes
//  3. Built-in policies - checks forge ships for common profile mistakes
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//
//	result, err := eng.EvaluateProfile(ctx, effective, policy.OperationValidate)
//	if err != nil {
//	    return err
//	}
//	for _, v := range result.Violations {
//	    fmt.Println(v)
//	}
//
// During provisioning the engine is used through Advise, which turns every
// violation into a warning line. Provisioning never stops on policy;
// `forge validate` fails when a violation has error severity.
//
// # Input
//
// Policies see the effective configuration (the profile after the trait
// merge) as plain maps and lists:
//
//	{
//	  "profile": "workstation",
//	  "config": {"traits": ["cli"], "pillars": {"developer": ["go"]}, ...},
//	  "context": {"operation": "validate", "platform": "arch", "timestamp": "..."}
//	}
//
// # Custom Policies
//
// A policy package defines a deny set. Entries are either strings or objects
// with message, severity and key fields:
//
//	package team.policies.gaming
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.config.pillars.gaming
//	    not "steam" in input.config.packages.arch
//	    violation := {
//	        "message": "gaming profiles install steam",
//	        "key": "packages.arch",
//	        "severity": "error",
//	    }
//	}
//
// A loaded policy with the name of a built-in one replaces it.
//
// # Hot Reload
//
// Loader.Watch reloads policy files when they change. WatchPaths is the
// underlying debounced watcher, also used by `forge validate --watch`.
package policy
