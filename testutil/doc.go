/*
Package testutil provides test data generators for riftsync.

Testing a set-reconciliation protocol mostly means testing against pairs of
files with a known, controlled relationship: identical, differing by one
small edit, differing by an insertion, or unrelated. This package builds
those pairs so tests can assert on outcomes (blocks transferred, D_hat
accuracy, retry counts) without depending on real file corpora.

# Baseline files

	fileA := testutil.GenerateTestFile(testutil.WithSize(100_000), testutil.WithSeed(1))

# Edited files

	fileB := testutil.GenerateSimilarFile(fileA, testutil.WithRunLength(50))

	fileC := testutil.GenerateInsertedFile(fileA, 30_000, testutil.GenerateRandomBytes(1000))

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
