/*Package propstat computes two aggregates over a delimited housing dataset:
the largest property size and the cheapest positive price.

Two execution strategies are provided. The distributed strategy stripes rows
across shared-nothing workers by row index; every worker opens and scans the
input on its own and the partial results are combined by a collective
reduction at rank 0. Workers run either in-process or as AWS Lambda
invocations. The shared-memory strategy loads the input once into memory and
splits the loaded records into contiguous ranges over a pool of goroutines,
which merge their partials under a mutex after the parallel region.

Malformed or missing fields never fail a run; they simply contribute no value
to the aggregate they would have fed.
*/
package propstat
