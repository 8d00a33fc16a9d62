// Package searchadmin exposes administrative operations of a search backend
// through a SQLite virtual table.
//
//	CREATE VIRTUAL TABLE search_admin USING search_admin(op);
//	SELECT op FROM search_admin WHERE op MATCH 'commit';  -- committed:<pending>
//	SELECT op FROM search_admin WHERE op MATCH 'wipe';    -- wiped:<count>
//	SELECT op FROM search_admin WHERE op MATCH 'count';   -- count:<count>
//	SELECT op FROM search_admin WHERE op MATCH 'fields';  -- one row per field
//	SELECT op FROM search_admin WHERE op MATCH 'match:cs_name';  -- fields admitting cs_name
package searchadmin
