// Package sharedsub is the Shared-Subscription Leader of spec section
// 4.7: a supervisor goroutine scans the shared-subscription map every
// ~1s, spawning a pull/push task pair for each topic that gains its
// first shared subscriber and tearing the pair down when the last one
// leaves. Five strategies (round_robin, random, sticky, hash, local)
// choose which subscriber a given record is pushed to.
package sharedsub
