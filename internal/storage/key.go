package storage

import "fmt"

// UnlinkedCase is the placeholder key segment used when evidence has no case
// association yet.
const UnlinkedCase = "unlinked"

// BuildKey assembles the hierarchical storage key for an evidence file:
//
//	{ownerID}/{caseID}/{evidenceID}_{filename}
//
// with UnlinkedCase substituted when caseID is empty. Pure and deterministic;
// the key is written to the evidence record at upload time and never
// recomputed afterwards (relinking a case leaves stored bytes where they are).
// Sanitization is not done here: the local backend's path resolver rejects
// traversal, and object stores treat the key as an opaque string.
func BuildKey(ownerID, caseID, evidenceID, filename string) string {
	if caseID == "" {
		caseID = UnlinkedCase
	}
	return fmt.Sprintf("%s/%s/%s_%s", ownerID, caseID, evidenceID, filename)
}
