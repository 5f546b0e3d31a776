// Package artifacts reads the dbt artifacts a lineage registry is built from.
//
// catalog.json supplies the physical columns of every model and source;
// manifest.json supplies compiled SQL, dependency edges and exposures. Only
// the fields lineage needs are decoded; everything else in the files is
// ignored, so artifacts from any recent dbt version load.
package artifacts
