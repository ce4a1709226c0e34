// Package ranking implements the farm retrieval and ranking pipeline.
//
// A ranking request pages through the farm collection with a server-side
// sort, optionally restricted to farms whose yield lies within a band around
// the collection mean, enriches the page with the distance from the
// requesting user to each farm, and re-sorts the page when the caller sorts
// by distance.
//
// Basic Usage:
//
//	pipeline := ranking.NewPipeline(users, farms, farms, distances,
//		ranking.DefaultConfig(), metrics, logger)
//
//	req := ranking.DefaultRequest()
//	req.SortColumn = ranking.SortByDistance
//	req.SortOrder = ranking.Ascending
//
//	ranked, err := pipeline.Rank(ctx, userID, req)
//	if err != nil {
//		switch ranking.KindOf(err) {
//		case ranking.KindEntityNotFound:
//			// unknown user
//		}
//	}
//
// Distance Sorting:
//
// Distance is not a stored attribute, so the store cannot order by it. A
// distance-sorted request queries the page ordered by name descending and
// then stable-sorts that page by distance. The ordering is therefore
// page-local: the nearest farm of page 2 may be nearer than the farthest farm
// of page 1. Farms with equal distance keep their relative page order.
//
// Ties on the store sort column come back in store-native order; no secondary
// sort key is applied, so pagination over equal names or dates is not
// guaranteed to be stable between requests.
//
// Errors:
//
// Every error returned by Rank is an *Error carrying a Kind. No partial
// results are returned: a distance failure fails the whole request.
package ranking
