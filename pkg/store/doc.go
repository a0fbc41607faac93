/*
Package store keeps survey responses in SQLite.

Each response is a JSON object. On the way in it is reduced to canonical
JSON, hashed, compressed and filed under its transaction id, with its
survey coordinates (survey id, form type, reporting unit reference and
period) copied into indexed columns so they can be filtered without
touching the body. Free-text queries are ranked over the matching bodies
with BM25.

Call SetupSchema once on a new database before creating a Store.
*/
package store
