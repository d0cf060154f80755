package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* TaskHeap metrics *************************/
	/*
		the number of tasks inserted into the heap
	*/
	HeapInsertedTasksCounter = "insertedTasksCounter"

	/*
		the number of take calls served by the heap
	*/
	HeapTakeCallsCounter = "takeCallsCounter"

	/*
		the number of tasks claimed across all take calls
	*/
	HeapClaimedTasksCounter = "claimedTasksCounter"

	/*
		the number of tasks removed because their ids were reported expired
	*/
	HeapExpiredTasksCounter = "expiredTasksCounter"

	/*
		the number of times the backing array grew
	*/
	HeapGrowthCounter = "heapGrowthCounter"

	/*
		the number of compactions run, threshold triggered or explicit
	*/
	HeapCompactionsCounter = "compactionsCounter"

	/*
		the allocated capacity of the backing array
	*/
	HeapSizeGauge = "heapSizeGauge"

	/*
		the length of the active prefix of the backing array
	*/
	HeapActualSizeGauge = "actualSizeGauge"

	/*
		the number of tombstones left by claims since the last compaction
	*/
	HeapFragmentationGauge = "fragmentationGauge"

	/*
		amount of time it takes to serve one take call, including lock wait
	*/
	HeapTakeLatency_ms = "takeLatency_ms"

	/************************* Dispatch metrics *************************/
	/*
		the number of tasks submitted through the dispatcher
	*/
	DispatchSubmittedTasksCounter = "submittedTasksCounter"

	/*
		the number of claim requests from workers
	*/
	DispatchClaimRequestsCounter = "claimRequestsCounter"

	/*
		the number of claim requests that returned no tasks
	*/
	DispatchEmptyClaimsCounter = "emptyClaimsCounter"

	/*
		the number of tasks reported finished by workers
	*/
	DispatchFinishedTasksCounter = "finishedTasksCounter"

	/*
		the number of queued tasks dropped through expiration
	*/
	DispatchExpiredTasksCounter = "expiredTasksCounter"

	/*
		the number of workers currently registered
	*/
	DispatchRegisteredWorkersGauge = "registeredWorkersGauge"

	/*
		the number of claimed tasks not yet reported finished
	*/
	DispatchRunningTasksGauge = "runningTasksGauge"

	/*
		the number of tasks handed out per non-empty claim
	*/
	DispatchClaimBatchSizeHistogram = "claimBatchSizeHistogram"
)
